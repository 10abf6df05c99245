// Package importer runs one statement upload through parsing, duplicate
// detection, account suggestions and reconciliation.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/insightdelivered/statement-import/internal/advisor"
	"github.com/insightdelivered/statement-import/internal/dedup"
	"github.com/insightdelivered/statement-import/internal/extractor"
	"github.com/insightdelivered/statement-import/internal/llm"
	"github.com/insightdelivered/statement-import/internal/models"
	"github.com/insightdelivered/statement-import/internal/parser"
	"github.com/insightdelivered/statement-import/internal/reconcile"
)

// ErrUnsupportedFile is returned for extensions no reader handles.
var ErrUnsupportedFile = errors.New("unsupported file type")

// Import sources recorded in the audit trail.
const (
	SourceCSV  = "csv"
	SourceOFX  = "ofx"
	SourceXLSX = "xlsx"
	SourceOCR  = "ocr"
)

// TransactionSource loads what an account already holds.
type TransactionSource interface {
	AccountTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)
}

// AuditRecorder stores one record per import attempt.
type AuditRecorder interface {
	RecordAttempt(ctx context.Context, attempt models.ImportAttempt) error
}

// Upload is one file handed to the orchestrator.
type Upload struct {
	Filename string
	Data     []byte
	// TargetAccountID is set when appending to an existing account.
	TargetAccountID string
	// Categories enables AI categorization when non-empty.
	Categories []string
	// Bank forces a parser by key instead of auto-detection.
	Bank string
}

// Result is what a successful import produces. Nothing is committed here;
// the caller decides what to persist.
type Result struct {
	AttemptID   string                 `json:"attemptId"`
	Source      string                 `json:"source"`
	Account     models.DetectedAccount `json:"account"`
	Confidence  float64                `json:"confidence"`
	SkippedRows int                    `json:"skippedRows"`

	// Transactions are the rows to commit: every parsed row for a new
	// account, only the unique ones when appending.
	Transactions        []models.ParsedTransaction `json:"transactions"`
	Duplicates          []models.Transaction       `json:"duplicates,omitempty"`
	DuplicatePercentage float64                    `json:"duplicatePercentage"`

	Suggestions     []models.AccountSuggestion `json:"suggestions,omitempty"`
	Calculated      string                     `json:"calculatedBalance"`
	Reconciliation  *reconcile.Session         `json:"-"`
	Categorizations []llm.Categorization       `json:"categorizations,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithOCR enables PDF and image statements.
func WithOCR(a *extractor.OCRAdapter) Option {
	return func(o *Orchestrator) { o.ocr = a }
}

// WithRenderOptions controls PDF rasterization.
func WithRenderOptions(opts extractor.RenderOptions) Option {
	return func(o *Orchestrator) { o.renderOpts = opts }
}

// WithCategorizer enables categorization for uploads that list categories.
func WithCategorizer(c *llm.Categorizer) Option {
	return func(o *Orchestrator) { o.categorizer = c }
}

// WithTransactionSource sets where existing account transactions come from.
func WithTransactionSource(s TransactionSource) Option {
	return func(o *Orchestrator) { o.existing = s }
}

// WithAuditRecorder sets the audit trail sink.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(o *Orchestrator) { o.audit = r }
}

// Orchestrator wires the pipeline stages together. It holds no per-import
// state and may be shared.
type Orchestrator struct {
	registry    *parser.Registry
	detector    *dedup.Detector
	advisor     *advisor.Advisor
	engine      *reconcile.Engine
	ocr         *extractor.OCRAdapter
	categorizer *llm.Categorizer
	existing    TransactionSource
	audit       AuditRecorder
	logger      *slog.Logger
	renderOpts  extractor.RenderOptions

	inspect func(data []byte) (extractor.PDFInfo, error)
	render  func(ctx context.Context, data []byte, opts extractor.RenderOptions) ([]llm.Image, error)
	now     func() time.Time
}

// New returns an Orchestrator over the given stages.
func New(registry *parser.Registry, detector *dedup.Detector, adv *advisor.Advisor, engine *reconcile.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		detector: detector,
		advisor:  adv,
		engine:   engine,
		inspect:  extractor.Inspect,
		render:   extractor.RenderPages,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Import processes one upload. The attempt is recorded exactly once whether
// it succeeds or fails.
func (o *Orchestrator) Import(ctx context.Context, up Upload) (*Result, error) {
	attempt := models.ImportAttempt{
		ID:        uuid.NewString(),
		Filename:  filepath.Base(up.Filename),
		CreatedAt: o.now().UTC(),
	}
	log := o.logger.With("attempt", attempt.ID, "file", attempt.Filename)

	result, err := o.run(ctx, up, &attempt, log)
	if err != nil {
		attempt.Failure = err.Error()
		log.Warn("import failed", "error", err)
	} else {
		attempt.BankName = result.Account.BankName
		attempt.TransactionCount = len(result.Transactions)
		result.AttemptID = attempt.ID
		log.Info("import parsed",
			"bank", result.Account.BankName,
			"source", result.Source,
			"transactions", len(result.Transactions),
			"duplicates", len(result.Duplicates))
	}

	if o.audit != nil {
		if aerr := o.audit.RecordAttempt(ctx, attempt); aerr != nil {
			log.Error("failed to record import attempt", "error", aerr)
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, up Upload, attempt *models.ImportAttempt, log *slog.Logger) (*Result, error) {
	parsed, source, err := o.read(ctx, up)
	attempt.Source = source
	if err != nil {
		return nil, err
	}

	result := &Result{
		Source:      source,
		Account:     parsed.Account,
		Confidence:  parsed.Confidence,
		SkippedRows: parsed.SkippedRows,
	}

	isNew := up.TargetAccountID == ""
	if isNew {
		result.Transactions = parsed.Transactions
		if o.advisor != nil {
			result.Suggestions = o.advisor.Analyze(models.Comparable(parsed.Transactions))
		}
	} else {
		if err := o.dedupe(ctx, up.TargetAccountID, parsed.Transactions, result); err != nil {
			return nil, err
		}
	}

	if o.engine != nil {
		session := o.engine.Start(parsed.Account, parsed.Transactions, isNew)
		result.Reconciliation = session
		result.Calculated = session.Calculated.StringFixed(2)
		if session.State() != reconcile.StateNotRequired {
			log.Info("balance mismatch needs reconciliation",
				"reported", session.Reported.StringFixed(2),
				"calculated", session.Calculated.StringFixed(2),
				"difference", session.Difference.StringFixed(2))
		}
	}

	if len(up.Categories) > 0 && o.categorizer != nil && len(result.Transactions) > 0 {
		cats, err := o.categorizer.Categorize(ctx, result.Transactions, up.Categories)
		if err != nil {
			log.Warn("categorization skipped", "error", err)
		} else {
			result.Categorizations = cats
		}
	}
	return result, nil
}

// dedupe keeps the rows not already on the account.
func (o *Orchestrator) dedupe(ctx context.Context, accountID string, txns []models.ParsedTransaction, result *Result) error {
	var existing []models.Transaction
	if o.existing != nil {
		var err error
		existing, err = o.existing.AccountTransactions(ctx, accountID)
		if err != nil {
			return fmt.Errorf("loading transactions for account %s: %w", accountID, err)
		}
	}

	detector := o.detector
	if detector == nil {
		detector = dedup.New(dedup.DefaultConfig())
	}

	unique, partition := detector.FilterParsed(txns, existing)
	result.Transactions = unique
	result.Duplicates = partition.Duplicates
	result.DuplicatePercentage = dedup.CalculateDuplicatePercentage(partition)
	return nil
}

// read dispatches on the file extension.
func (o *Orchestrator) read(ctx context.Context, up Upload) (*models.ParseResult, string, error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	switch ext {
	case ".csv", ".txt":
		res, err := o.parseText(string(up.Data), up.Bank)
		return res, SourceCSV, err
	case ".ofx", ".qfx":
		res, err := o.parseText(string(up.Data), up.Bank)
		return res, SourceOFX, err
	case ".xlsx":
		text, err := xlsxToCSV(up.Data)
		if err != nil {
			return nil, SourceXLSX, err
		}
		res, err := o.parseText(text, up.Bank)
		return res, SourceXLSX, err
	case ".pdf":
		res, err := o.readPDF(ctx, up.Data)
		return res, SourceOCR, err
	}
	if mediaType, ok := extractor.ImageMediaType(ext); ok {
		res, err := o.readImage(ctx, mediaType, up.Data)
		return res, SourceOCR, err
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
}

func (o *Orchestrator) parseText(raw, bank string) (*models.ParseResult, error) {
	if bank == "" {
		return o.registry.Parse(raw)
	}
	p, err := parser.New(bank)
	if err != nil {
		return nil, err
	}
	res, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s statement: %w", p.BankName(), err)
	}
	return res, nil
}

func (o *Orchestrator) readPDF(ctx context.Context, data []byte) (*models.ParseResult, error) {
	if o.ocr == nil {
		return nil, fmt.Errorf("PDF statements need the AI reader: %w", llm.ErrUnavailable)
	}
	info, err := o.inspect(data)
	if err != nil {
		return nil, err
	}
	pages, err := o.render(ctx, data, o.renderOpts)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF pages: %w", err)
	}

	var hint string
	if info.Readable() {
		hint = strings.Join(info.Text, "\n\n")
	}
	return o.ocr.Extract(ctx, pages, hint)
}

func (o *Orchestrator) readImage(ctx context.Context, mediaType string, data []byte) (*models.ParseResult, error) {
	if o.ocr == nil {
		return nil, fmt.Errorf("image statements need the AI reader: %w", llm.ErrUnavailable)
	}
	return o.ocr.Extract(ctx, []llm.Image{{MediaType: mediaType, Data: data}}, "")
}
