package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/models"
)

// ErrInvalidTransition is returned when an action is not allowed in the
// session's current state.
var ErrInvalidTransition = errors.New("invalid reconciliation transition")

// State is a reconciliation session state.
type State string

const (
	StateNotRequired       State = "NOT_REQUIRED"
	StateAwaitingMethod    State = "AWAITING_METHOD"
	StateAwaitingSelection State = "AWAITING_SELECTION"
	StateAwaitingEntry     State = "AWAITING_ENTRY"
	StateResolved          State = "RESOLVED"
	StateOverridden        State = "OVERRIDDEN"
)

// Terminal reports whether no further action is possible.
func (s State) Terminal() bool {
	return s == StateNotRequired || s == StateResolved || s == StateOverridden
}

// Session tracks one statement's reconciliation from detection to outcome.
// It is not safe for concurrent use.
type Session struct {
	engine *Engine
	state  State

	Reported     decimal.Decimal
	Calculated   decimal.Decimal
	Difference   decimal.Decimal // Reported - Calculated
	Transactions []models.ParsedTransaction

	Suggestions []models.SuggestedTransaction
	// Added holds the transactions the user accepted, selected or typed.
	Added      []models.SuggestedTransaction
	Validation *Validation
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

func (s *Session) require(want ...State) error {
	for _, w := range want {
		if s.state == w {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot do that in state %s", ErrInvalidTransition, s.state)
}

// Override accepts the statement with the gap unresolved.
func (s *Session) Override() error {
	if err := s.require(StateAwaitingMethod); err != nil {
		return err
	}
	s.state = StateOverridden
	return nil
}

// FindWithAI asks the model for candidate missing transactions. The session
// moves to AwaitingSelection even when the model returns nothing.
func (s *Session) FindWithAI(ctx context.Context) ([]models.SuggestedTransaction, error) {
	if err := s.require(StateAwaitingMethod); err != nil {
		return nil, err
	}
	s.Suggestions = s.engine.suggest(ctx, s)
	s.state = StateAwaitingSelection
	return s.Suggestions, nil
}

// ChooseManual switches to manual entry. It is also the fallback when the
// model's suggestions are not useful.
func (s *Session) ChooseManual() error {
	if err := s.require(StateAwaitingMethod, StateAwaitingSelection); err != nil {
		return err
	}
	s.state = StateAwaitingEntry
	return nil
}

// Select accepts the suggestions at the given indices and resolves the session.
func (s *Session) Select(indices []int) (Validation, error) {
	if err := s.require(StateAwaitingSelection); err != nil {
		return Validation{}, err
	}
	selected := make([]models.SuggestedTransaction, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(s.Suggestions) {
			return Validation{}, fmt.Errorf("suggestion index %d out of range", i)
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		selected = append(selected, s.Suggestions[i])
	}
	return s.resolve(selected), nil
}

// SubmitManual records user-entered transactions and resolves the session.
func (s *Session) SubmitManual(txns []models.SuggestedTransaction) (Validation, error) {
	if err := s.require(StateAwaitingEntry); err != nil {
		return Validation{}, err
	}
	for i, t := range txns {
		if t.Amount.IsZero() || t.Description == "" {
			return Validation{}, fmt.Errorf("manual transaction %d: amount and description are required", i)
		}
		if t.Confidence == 0 {
			txns[i].Confidence = 1
		}
		txns[i].Type = models.TypeExpense
		if t.Amount.IsPositive() {
			txns[i].Type = models.TypeIncome
		}
	}
	return s.resolve(txns), nil
}

func (s *Session) resolve(added []models.SuggestedTransaction) Validation {
	v := ValidateSuggestions(added, s.Difference, s.engine.cfg.ValidityTolerance)
	s.Added = added
	s.Validation = &v
	s.state = StateResolved
	return v
}
