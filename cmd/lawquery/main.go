package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"lawquery/internal/compose"
	"lawquery/internal/config"
	"lawquery/internal/corpus"
	"lawquery/internal/embed"
	"lawquery/internal/expand"
	"lawquery/internal/guard"
	"lawquery/internal/judge"
	"lawquery/internal/llm"
	"lawquery/internal/metrics"
	"lawquery/internal/pipeline"
	"lawquery/internal/planner"
	"lawquery/internal/ratereg"
	"lawquery/internal/rerank"
	"lawquery/internal/retriever"
	"lawquery/internal/store"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "lawquery",
		Short: "Grounded question answering over a tax-law corpus",
	}
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(askCmd)
}

// buildEngine wires the full pipeline from configuration. The store is
// returned alongside so the caller can close it.
func buildEngine(ctx context.Context) (*pipeline.Engine, *store.SQLiteStore, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.AI.APIKey == "" {
		return nil, nil, fmt.Errorf("AI API key not configured")
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	chunkStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open chunk store: %w", err)
	}

	embedder, err := embed.New(ctx, embed.Options{
		Provider:  cfg.AI.Provider,
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.EmbedModel,
		Dimension: cfg.AI.Dimension,
		BaseURL:   cfg.AI.BaseURL,
	})
	if err != nil {
		chunkStore.Close()
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	client, err := llm.New(ctx, llm.Options{
		Provider: cfg.AI.Provider,
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.Model,
		BaseURL:  cfg.AI.BaseURL,
	})
	if err != nil {
		chunkStore.Close()
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	defaults := corpus.DefaultRetrievalConfig()
	if cfg.Retrieval.VectorTopK > 0 {
		defaults.VectorTopK = cfg.Retrieval.VectorTopK
	}
	if cfg.Retrieval.KeywordTopK > 0 {
		defaults.KeywordTopK = cfg.Retrieval.KeywordTopK
	}
	if cfg.Retrieval.MaxChunksPerDocument > 0 {
		defaults.MaxChunksPerDocument = cfg.Retrieval.MaxChunksPerDocument
	}
	if cfg.Retrieval.MinDistinctDocuments > 0 {
		defaults.MinDistinctDocuments = cfg.Retrieval.MinDistinctDocuments
	}

	m := metrics.New()

	var rateReg ratereg.Registry
	if cfg.RateRegistry.URL != "" {
		rateReg = ratereg.NewHTTPRegistry(cfg.RateRegistry.URL)
	}

	engine := pipeline.NewEngine(pipeline.Deps{
		Planner:   planner.NewExtractor(client, defaults, logger, m),
		Retriever: retriever.NewHybrid(chunkStore, embedder, logger, m),
		Guard:     guard.New(logger),
		Reranker:  rerank.New(client, logger, m),
		Expander:  expand.New(chunkStore, logger),
		Judge:     judge.New(client, logger, m),
		Composer:  compose.NewLLMComposer(client, logger),
		RateReg:   rateReg,
		Logger:    logger,
		Metrics:   m,
	})
	return engine, chunkStore, nil
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question grounded in the indexed legal corpus",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			log.Fatal("Question must not be empty")
		}

		ctx := cmd.Context()
		engine, chunkStore, err := buildEngine(ctx)
		if err != nil {
			log.Fatalf("Setup failed: %v\nCheck your config.yaml and API keys.", err)
		}
		defer chunkStore.Close()

		sink := pipeline.SinkFunc(func(ev pipeline.Event) {
			switch ev.Type {
			case pipeline.EventStatus:
				fmt.Fprintf(os.Stderr, "… %s\n", ev.Text)
			case pipeline.EventThinking:
				fmt.Fprintf(os.Stderr, "  (%s)\n", ev.Text)
			}
		})

		result := engine.AnswerStream(ctx, question, sink)

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, src := range result.Sources {
				fmt.Printf("  [%s] %s (%s)\n", src.SID, src.Title, src.Anchor)
			}
		}
	},
}
