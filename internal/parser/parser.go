package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-import/internal/models"
)

var (
	// ErrFormatNotRecognized is returned when no registered parser accepts the input.
	ErrFormatNotRecognized = errors.New("statement format not recognized")
	// ErrNoTransactions is returned when a parser accepted the input but found no rows.
	ErrNoTransactions = errors.New("no transactions found in statement")
)

// Parser defines the interface for bank statement parsers.
type Parser interface {
	// BankName returns the human-readable bank name.
	BankName() string
	// Detect reports whether raw looks like this parser's format.
	Detect(raw string) bool
	// Parse turns raw statement text into normalized transactions.
	Parse(raw string) (*models.ParseResult, error)
}

// Registry holds parsers in priority order. Specific formats must be
// registered before loose ones.
type Registry struct {
	parsers []Parser
}

// NewRegistry returns a Registry over parsers, in the given order.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry returns every built-in parser: the OFX envelope, then bank
// signatures, then the header-shape parsers from strict to loose.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewOFXParser(),
		NewNequiParser(),
		NewBancolombiaParser(),
		NewDaviviendaParser(),
		NewBBVAParser(),
		NewBogotaParser(),
		NewDebitCreditParser(),
		NewGenericParser(),
	)
}

// Register appends p with the lowest priority.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Detect returns the first parser that accepts raw.
func (r *Registry) Detect(raw string) (Parser, error) {
	for _, p := range r.parsers {
		if p.Detect(raw) {
			return p, nil
		}
	}
	return nil, ErrFormatNotRecognized
}

// Parse dispatches raw to the first accepting parser.
func (r *Registry) Parse(raw string) (*models.ParseResult, error) {
	p, err := r.Detect(raw)
	if err != nil {
		return nil, err
	}
	result, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s statement: %w", p.BankName(), err)
	}
	return result, nil
}

// New returns the built-in parser for a bank key such as "bancolombia" or "nequi".
func New(bank string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(bank)) {
	case "bancolombia":
		return NewBancolombiaParser(), nil
	case "davivienda":
		return NewDaviviendaParser(), nil
	case "bbva":
		return NewBBVAParser(), nil
	case "bogota", "bogotá", "banco de bogota", "banco de bogotá":
		return NewBogotaParser(), nil
	case "nequi":
		return NewNequiParser(), nil
	case "ofx", "qfx":
		return NewOFXParser(), nil
	case "debitcredit", "debito-credito":
		return NewDebitCreditParser(), nil
	case "generic", "":
		return NewGenericParser(), nil
	default:
		return nil, fmt.Errorf("unsupported bank type: %q", bank)
	}
}
