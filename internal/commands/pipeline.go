package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/insightdelivered/statement-import/internal/advisor"
	"github.com/insightdelivered/statement-import/internal/config"
	"github.com/insightdelivered/statement-import/internal/dedup"
	"github.com/insightdelivered/statement-import/internal/extractor"
	"github.com/insightdelivered/statement-import/internal/importer"
	"github.com/insightdelivered/statement-import/internal/llm"
	"github.com/insightdelivered/statement-import/internal/parser"
	"github.com/insightdelivered/statement-import/internal/reconcile"
	"github.com/insightdelivered/statement-import/internal/store"
)

// pipeline is the fully wired import stack.
type pipeline struct {
	store        *store.SQLiteStore
	engine       *reconcile.Engine
	orchestrator *importer.Orchestrator
	aiEnabled    bool
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

// buildPipeline opens the database and wires every stage from cfg. The
// model is optional: without an API key PDF and image imports fail and
// reconciliation offers no suggestions.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	logger := slog.Default()

	st, err := store.NewSQLiteStore(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	cats := advisor.DefaultCategories()
	if cfg.Advisor.PatternsFile != "" {
		cats, err = advisor.LoadPatterns(cfg.Advisor.PatternsFile)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("loading advisor patterns: %w", err)
		}
	}
	adv, err := advisor.New(cats)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var oracle llm.Oracle
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewAnthropicClient(cfg.LLM)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		oracle = client.Oracle()
	} else {
		logger.Debug("no API key configured, AI features disabled")
	}

	engine := reconcile.New(cfg.ReconcileSettings(), oracle, logger)
	opts := []importer.Option{
		importer.WithLogger(logger),
		importer.WithTransactionSource(st),
		importer.WithAuditRecorder(st),
		importer.WithRenderOptions(cfg.RenderSettings()),
	}
	if oracle != nil {
		opts = append(opts,
			importer.WithOCR(extractor.NewOCRAdapter(oracle, logger)),
			importer.WithCategorizer(llm.NewCategorizer(oracle, cfg.Categorize.BatchSize, logger)),
		)
	}

	orch := importer.New(parser.DefaultRegistry(), dedup.New(cfg.DedupSettings()), adv, engine, opts...)
	return &pipeline{store: st, engine: engine, orchestrator: orch, aiEnabled: oracle != nil}, nil
}
