package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/importer"
	"github.com/insightdelivered/statement-import/internal/llm"
	"github.com/insightdelivered/statement-import/internal/models"
	"github.com/insightdelivered/statement-import/internal/parser"
	"github.com/insightdelivered/statement-import/internal/reconcile"
	"github.com/insightdelivered/statement-import/internal/writer"
)

// Importer runs one upload through the pipeline.
type Importer interface {
	Import(ctx context.Context, up importer.Upload) (*importer.Result, error)
}

// AttemptLister reads the import audit trail.
type AttemptLister interface {
	Attempts(ctx context.Context, limit int) ([]models.ImportAttempt, error)
}

// ImportResponse is the JSON response from the /api/import endpoint.
type ImportResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*importer.Result
	Reconciliation *ReconciliationInfo `json:"reconciliation,omitempty"`
	CSV            string              `json:"csv,omitempty"`
	Count          int                 `json:"count"`
	TotalIncome    decimal.Decimal     `json:"totalIncome"`
	TotalExpense   decimal.Decimal     `json:"totalExpense"`
}

// ReconciliationInfo summarizes the balance check of a new-account import.
type ReconciliationInfo struct {
	State      reconcile.State `json:"state"`
	Reported   decimal.Decimal `json:"reportedBalance"`
	Calculated decimal.Decimal `json:"calculatedBalance"`
	Difference decimal.Decimal `json:"difference"`
}

// SuggestRequest asks for candidate missing transactions.
type SuggestRequest struct {
	ReportedBalance decimal.Decimal  `json:"reportedBalance"`
	OpeningBalance  *decimal.Decimal `json:"openingBalance,omitempty"`
	Transactions    []TransactionIn  `json:"transactions"`
}

// TransactionIn is a transaction as posted by the client.
type TransactionIn struct {
	Date        string          `json:"date"` // YYYY-MM-DD
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// SuggestResponse carries the suggestions, if reconciliation is needed.
type SuggestResponse struct {
	Required    bool                          `json:"required"`
	Difference  decimal.Decimal               `json:"difference"`
	Suggestions []models.SuggestedTransaction `json:"suggestions"`
}

// ValidateRequest scores a selection against the balance gap.
type ValidateRequest struct {
	Selected   []models.SuggestedTransaction `json:"selected"`
	Difference decimal.Decimal               `json:"difference"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Importer  Importer
	Engine    *reconcile.Engine
	Attempts  AttemptLister
	Version   string
	StaticDir string
	Logger    *slog.Logger
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	api := app.Group("/api")
	api.Get("/health", h.HandleHealth)
	api.Post("/import", h.HandleImport)
	api.Post("/reconcile/suggest", h.HandleSuggest)
	api.Post("/reconcile/validate", h.HandleValidate)
	api.Get("/imports", h.HandleImports)

	if h.StaticDir != "" {
		app.Static("/", h.StaticDir)
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": h.Version,
	})
}

func (h *Handler) HandleImport(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "Failed to read uploaded file.")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "Failed to read uploaded file.")
	}

	up := importer.Upload{
		Filename:        fh.Filename,
		Data:            data,
		TargetAccountID: strings.TrimSpace(c.FormValue("accountId")),
		Categories:      splitList(c.FormValue("categories")),
		Bank:            strings.TrimSpace(c.FormValue("bank")),
	}

	result, err := h.Importer.Import(c.UserContext(), up)
	if err != nil {
		return writeError(c, statusFor(err), err.Error())
	}

	cw := &writer.CSVWriter{IncludeHeader: c.FormValue("header") != "false"}
	if len(result.Categorizations) > 0 {
		cw.Categories = make([]string, len(result.Categorizations))
		for i, cat := range result.Categorizations {
			cw.Categories[i] = cat.Category
		}
	}
	var csvBuf bytes.Buffer
	if err := cw.Write(&csvBuf, result.Account, result.Transactions); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err))
	}

	resp := ImportResponse{
		Success:      true,
		Result:       result,
		CSV:          csvBuf.String(),
		Count:        len(result.Transactions),
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	if result.Transactions == nil {
		result.Transactions = []models.ParsedTransaction{}
	}
	for _, t := range result.Transactions {
		if t.Type == models.TypeIncome {
			resp.TotalIncome = resp.TotalIncome.Add(t.Amount)
		} else {
			resp.TotalExpense = resp.TotalExpense.Add(t.Amount.Abs())
		}
	}
	if s := result.Reconciliation; s != nil {
		resp.Reconciliation = &ReconciliationInfo{
			State:      s.State(),
			Reported:   s.Reported,
			Calculated: s.Calculated,
			Difference: s.Difference,
		}
	}
	return c.JSON(resp)
}

func (h *Handler) HandleSuggest(c *fiber.Ctx) error {
	var req SuggestRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	txns := make([]models.ParsedTransaction, 0, len(req.Transactions))
	for i, in := range req.Transactions {
		date, err := time.Parse("2006-01-02", in.Date)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("transaction %d: bad date %q", i, in.Date))
		}
		p, err := models.NewParsedTransaction(date, in.Amount, in.Description, in.Description)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("transaction %d: %v", i, err))
		}
		txns = append(txns, p)
	}

	reported := req.ReportedBalance
	session := h.Engine.Start(models.DetectedAccount{
		ReportedBalance: &reported,
		OpeningBalance:  req.OpeningBalance,
	}, txns, true)

	resp := SuggestResponse{
		Required:    session.State() == reconcile.StateAwaitingMethod,
		Difference:  session.Difference,
		Suggestions: []models.SuggestedTransaction{},
	}
	if resp.Required {
		suggestions, err := session.FindWithAI(c.UserContext())
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, err.Error())
		}
		resp.Suggestions = suggestions
	}
	return c.JSON(resp)
}

func (h *Handler) HandleValidate(c *fiber.Ctx) error {
	var req ValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	v := reconcile.ValidateSuggestions(req.Selected, req.Difference, h.Engine.Config().ValidityTolerance)
	return c.JSON(v)
}

func (h *Handler) HandleImports(c *fiber.Ctx) error {
	if h.Attempts == nil {
		return writeError(c, fiber.StatusNotImplemented, "Import history is not configured.")
	}
	attempts, err := h.Attempts.Attempts(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		h.logger().Error("listing import attempts", "error", err)
		return writeError(c, fiber.StatusInternalServerError, "Failed to read import history.")
	}
	if attempts == nil {
		attempts = []models.ImportAttempt{}
	}
	return c.JSON(fiber.Map{"imports": attempts})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, importer.ErrUnsupportedFile):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, llm.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, parser.ErrFormatNotRecognized),
		errors.Is(err, parser.ErrNoTransactions),
		errors.Is(err, llm.ErrMalformedResponse):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ImportResponse{
		Success: false,
		Error:   msg,
	})
}
