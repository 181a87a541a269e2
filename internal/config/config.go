package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	AI struct {
		Provider   string `yaml:"provider"`
		Model      string `yaml:"model"`       // reasoning model
		EmbedModel string `yaml:"embed_model"` // embedding model
		APIKey     string `yaml:"api_key"`
		BaseURL    string `yaml:"base_url"`
		Dimension  int    `yaml:"dimension"`
	} `yaml:"ai"`
	Retrieval struct {
		VectorTopK           int `yaml:"vector_top_k"`
		KeywordTopK          int `yaml:"keyword_top_k"`
		MaxChunksPerDocument int `yaml:"max_chunks_per_document"`
		MinDistinctDocuments int `yaml:"min_distinct_documents"`
	} `yaml:"retrieval"`
	RateRegistry struct {
		URL string `yaml:"url"`
	} `yaml:"rate_registry"`
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	// 3. Override with environment variables if present
	if apiKey := os.Getenv("LAWQUERY_API_KEY"); apiKey != "" {
		cfg.AI.APIKey = apiKey
	}
	if provider := os.Getenv("LAWQUERY_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if url := os.Getenv("LAWQUERY_RATE_REGISTRY_URL"); url != "" {
		cfg.RateRegistry.URL = url
	}

	return &cfg, nil
}
