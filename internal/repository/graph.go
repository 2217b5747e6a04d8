// Package repository persists knowledge graphs to PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/geodata-extractor/internal/common"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/pipeline"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	source_file  TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL,
	page_count   INTEGER NOT NULL,
	status       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entities (
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	PRIMARY KEY (name, type)
);
CREATE TABLE IF NOT EXISTS relationships (
	source_name TEXT NOT NULL,
	target_name TEXT NOT NULL,
	type        TEXT NOT NULL,
	PRIMARY KEY (source_name, target_name, type)
);
CREATE TABLE IF NOT EXISTS entity_mentions (
	entity_name TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	source_file TEXT NOT NULL REFERENCES documents (source_file) ON DELETE CASCADE,
	PRIMARY KEY (entity_name, entity_type, source_file),
	FOREIGN KEY (entity_name, entity_type) REFERENCES entities (name, type)
);`

// Graph is the knowledge-graph payload as loaded into the store.
type Graph struct {
	Entities      []GraphEntity       `json:"entities"`
	Relationships []GraphRelationship `json:"relationships"`
}

type GraphEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type GraphRelationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// DecodeGraph reads a validated knowledge-graph payload.
func DecodeGraph(payload []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(payload, &g); err != nil {
		return Graph{}, fmt.Errorf("%w: decode graph: %v", common.ErrInvalidInput, err)
	}
	return g, nil
}

// GraphStore writes one document's graph per transaction. Every write is an
// idempotent upsert, so reloading a document leaves the graph unchanged.
type GraphStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewGraphStore creates the schema if needed.
func NewGraphStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*GraphStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GraphStore{pool: pool, logger: logger}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return nil, common.NewAppError("DATABASE_ERROR", "create graph schema", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	return s, nil
}

// OpenGraphStore connects and initializes the schema.
func OpenGraphStore(ctx context.Context, cfg Config, logger *slog.Logger) (*GraphStore, error) {
	pool, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, common.NewAppError("DATABASE_ERROR", "connect graph store", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	s, err := NewGraphStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// LoadGraph upserts the document node, its entities and relationships, and one
// mention per entity. Records without a succeeded knowledge graph are skipped.
func (s *GraphStore) LoadGraph(ctx context.Context, rec pipeline.DocumentRecord) error {
	logger := common.LoggerFromContext(ctx, s.logger)
	if rec.KnowledgeGraph == nil || !rec.KnowledgeGraph.Succeeded {
		logger.Debug("graph.load.skipped", "source_file", rec.SourceFile)
		return nil
	}
	g, err := DecodeGraph(rec.KnowledgeGraph.Payload)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		b.Queue(`INSERT INTO documents (source_file, processed_at, page_count, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (source_file) DO UPDATE
			SET processed_at = EXCLUDED.processed_at, page_count = EXCLUDED.page_count, status = EXCLUDED.status`,
			rec.SourceFile, rec.ProcessedAt, rec.PageCount, string(rec.Status))
		for _, e := range g.Entities {
			b.Queue(`INSERT INTO entities (name, type) VALUES ($1, $2) ON CONFLICT DO NOTHING`, e.Name, e.Type)
			b.Queue(`INSERT INTO entity_mentions (entity_name, entity_type, source_file) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				e.Name, e.Type, rec.SourceFile)
		}
		for _, r := range g.Relationships {
			b.Queue(`INSERT INTO relationships (source_name, target_name, type) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				r.Source, r.Target, r.Type)
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		logger.Error("graph.load.failed", "source_file", rec.SourceFile, "error", err)
		return fmt.Errorf("%w: load graph for %s: %v", common.ErrDatabase, rec.SourceFile, err)
	}

	logger.Info("graph.load.ok",
		"source_file", rec.SourceFile,
		"entities", len(g.Entities),
		"relationships", len(g.Relationships),
	)
	return nil
}

// Counts returns the row counts of entities, relationships and mentions.
func (s *GraphStore) Counts(ctx context.Context) (entities, relationships, mentions int, err error) {
	err = s.pool.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM entities),
		(SELECT count(*) FROM relationships),
		(SELECT count(*) FROM entity_mentions)`).Scan(&entities, &relationships, &mentions)
	return
}

func (s *GraphStore) Close() {
	s.logger.Info("graph.close")
	s.pool.Close()
}
