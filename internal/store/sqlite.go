package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"lawquery/internal/corpus"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the chunk corpus in a single SQLite file: one row
// per chunk with its embedding as a little-endian float32 blob, plus an
// FTS5 shadow table for the ranked keyword path.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens the corpus database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			doc_type TEXT,
			number TEXT,
			year INTEGER,
			title TEXT,
			status TEXT,
			active INTEGER DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT,
			anchor TEXT,
			chunk_type TEXT,
			article INTEGER DEFAULT 0,
			clause INTEGER DEFAULT 0,
			sub_clause TEXT DEFAULT '',
			body TEXT,
			token_estimate INTEGER DEFAULT 0,
			embedding BLOB
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_pointer ON chunks(document_id, article, clause, sub_clause);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			body,
			content='chunks',
			content_rowid='rowid'
		);`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, body) VALUES (new.rowid, new.body);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, body) VALUES ('delete', old.rowid, old.body);
		END;`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- write side (ingestion tooling and tests; the pipeline never calls these) ---

// UpsertDocument registers or updates a document's metadata.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, id string, meta corpus.DocumentMeta, active bool) error {
	activeFlag := 0
	if active {
		activeFlag = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, doc_type, number, year, title, status, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc_type=excluded.doc_type,
			number=excluded.number,
			year=excluded.year,
			title=excluded.title,
			status=excluded.status,
			active=excluded.active
	`, id, string(meta.Type), meta.Number, meta.Year, meta.Title, meta.Status, activeFlag)
	return err
}

// UpsertChunks stores chunks with their embeddings.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []corpus.Chunk, embeddings [][]float32) error {
	if len(embeddings) != 0 && len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, anchor, chunk_type, article, clause, sub_clause, body, token_estimate, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id=excluded.document_id,
			anchor=excluded.anchor,
			chunk_type=excluded.chunk_type,
			article=excluded.article,
			clause=excluded.clause,
			sub_clause=excluded.sub_clause,
			body=excluded.body,
			token_estimate=excluded.token_estimate,
			embedding=excluded.embedding
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range chunks {
		var blob []byte
		if len(embeddings) > 0 {
			blob = encodeVector(embeddings[i])
		}
		if _, err := stmt.Exec(c.ID, c.DocumentID, c.Anchor, string(c.Type),
			c.Pointer.Article, c.Pointer.Clause, c.Pointer.SubClause,
			c.Text, c.TokenEstimate, blob); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- read side ---

const chunkColumns = `c.id, c.document_id, c.anchor, c.chunk_type, c.article, c.clause, c.sub_clause,
	c.body, c.token_estimate, d.doc_type, d.number, d.year, d.title, d.status`

func (s *SQLiteStore) VectorSearch(ctx context.Context, embedding []float32, f Filters, topK int) ([]corpus.Chunk, error) {
	// Brute-force cosine over the active subset. Fine at the corpus
	// sizes a single legal domain produces (tens of thousands of
	// chunks); swap for an ANN index if that changes.
	where, args := filterClause(f)
	query := `SELECT ` + chunkColumns + `, c.embedding
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.active = 1` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search query: %w", err)
	}
	defer rows.Close()

	var out []corpus.Chunk
	for rows.Next() {
		var c corpus.Chunk
		var blob []byte
		if err := scanChunk(rows, &c, &blob); err != nil {
			return nil, err
		}
		if len(blob) == 0 {
			continue
		}
		c.VectorScore = float64(cosineSimilarity(embedding, decodeVector(blob)))
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].VectorScore > out[j].VectorScore })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *SQLiteStore) KeywordSearch(ctx context.Context, terms []string, f Filters, topK int) ([]corpus.Chunk, error) {
	match := buildMatchQuery(terms)
	if match == "" {
		return nil, nil
	}

	where, args := filterClause(f)
	query := `SELECT ` + chunkColumns + `, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ? AND d.active = 1` + where + `
		ORDER BY rank LIMIT ?`
	args = append([]any{match}, append(args, topK)...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search query: %w", err)
	}
	defer rows.Close()

	var out []corpus.Chunk
	for rows.Next() {
		var c corpus.Chunk
		var rank float64
		if err := scanChunk(rows, &c, &rank); err != nil {
			return nil, err
		}
		// bm25 reports lower-is-better; fold into a (0,1] rank score.
		if rank < 0 {
			rank = -rank
		}
		c.KeywordScore = 1.0 / (1.0 + rank)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetByPointer(ctx context.Context, documentID string, p corpus.Pointer) (*corpus.Chunk, error) {
	query := `SELECT ` + chunkColumns + `
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.active = 1 AND c.document_id = ? AND c.article = ? AND c.clause = ? AND c.sub_clause = ?
		  AND c.chunk_type != ?
		LIMIT 1`
	rows, err := s.db.QueryContext(ctx, query, documentID, p.Article, p.Clause, p.SubClause,
		string(corpus.ChunkAnnotation))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var c corpus.Chunk
	if err := scanChunk(rows, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) GetSiblings(ctx context.Context, documentID string, p corpus.Pointer, window int) ([]corpus.Chunk, error) {
	if p.Clause == 0 || window <= 0 {
		return nil, nil
	}
	query := `SELECT ` + chunkColumns + `
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.active = 1 AND c.document_id = ? AND c.article = ?
		  AND c.chunk_type = ? AND c.clause BETWEEN ? AND ? AND c.clause != ?
		ORDER BY c.clause`
	rows, err := s.db.QueryContext(ctx, query, documentID, p.Article,
		string(corpus.ChunkClause), p.Clause-window, p.Clause+window, p.Clause)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []corpus.Chunk
	for rows.Next() {
		var c corpus.Chunk
		if err := scanChunk(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAnnotation(ctx context.Context, documentID string, p corpus.Pointer) (*corpus.Chunk, error) {
	query := `SELECT ` + chunkColumns + `
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.active = 1 AND c.document_id = ? AND c.article = ? AND c.chunk_type = ?
		LIMIT 1`
	rows, err := s.db.QueryContext(ctx, query, documentID, p.Article, string(corpus.ChunkAnnotation))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var c corpus.Chunk
	if err := scanChunk(rows, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- helpers ---

// scanChunk reads the shared chunk columns plus any trailing extras.
func scanChunk(rows *sql.Rows, c *corpus.Chunk, extra ...any) error {
	var docType string
	var chunkType string
	dest := []any{
		&c.ID, &c.DocumentID, &c.Anchor, &chunkType,
		&c.Pointer.Article, &c.Pointer.Clause, &c.Pointer.SubClause,
		&c.Text, &c.TokenEstimate,
		&docType, &c.Doc.Number, &c.Doc.Year, &c.Doc.Title, &c.Doc.Status,
	}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.Type = corpus.ChunkType(chunkType)
	c.Doc.Type = corpus.NormalizeDocType(docType)
	return nil
}

func filterClause(f Filters) (string, []any) {
	var sb strings.Builder
	var args []any
	if len(f.DocTypes) > 0 {
		sb.WriteString(" AND d.doc_type IN (")
		for i, t := range f.DocTypes {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, string(t))
		}
		sb.WriteString(")")
	}
	if len(f.DocRefs) > 0 {
		sb.WriteString(" AND (")
		for i, r := range f.DocRefs {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			sb.WriteString("(d.doc_type = ? AND d.number = ? AND d.year = ?)")
			args = append(args, string(r.Type), r.Number, r.Year)
		}
		sb.WriteString(")")
	}
	return sb.String(), args
}

// buildMatchQuery quotes each term for FTS5 and ORs them together.
func buildMatchQuery(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.ReplaceAll(t, `"`, ""))
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	_ = binary.Read(bytes.NewReader(blob), binary.LittleEndian, &out)
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}
