// Package dedup finds transactions in a new import that already exist on an account.
package dedup

import (
	"time"

	"github.com/insightdelivered/statement-import/internal/models"
	"github.com/insightdelivered/statement-import/internal/similarity"
)

// Config holds the matching tolerances.
type Config struct {
	DateTolerance       time.Duration
	SimilarityThreshold float64
}

// DefaultConfig matches same-amount rows within a day whose descriptions are
// at least 85% alike.
func DefaultConfig() Config {
	return Config{
		DateTolerance:       24 * time.Hour,
		SimilarityThreshold: 0.85,
	}
}

// Detector compares transactions pairwise.
type Detector struct {
	cfg Config
}

// New returns a Detector. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.DateTolerance <= 0 {
		cfg.DateTolerance = def.DateTolerance
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	return &Detector{cfg: cfg}
}

// IsDuplicate reports whether a and b describe the same movement of money.
// Amounts must match exactly; dates and descriptions are compared loosely.
func (d *Detector) IsDuplicate(a, b models.Transaction) bool {
	if !a.Amount.Equal(b.Amount) {
		return false
	}
	diff := a.Date.Sub(b.Date)
	if diff < 0 {
		diff = -diff
	}
	if diff > d.cfg.DateTolerance {
		return false
	}
	return similarity.Score(a.Description, b.Description) >= d.cfg.SimilarityThreshold
}

// FindDuplicates partitions newTxns into those matching any existing
// transaction and those that do not. Order is preserved in both lists.
func (d *Detector) FindDuplicates(newTxns, existing []models.Transaction) models.DuplicateDetectionResult {
	result, _ := d.partition(newTxns, existing)
	return result
}

// FilterParsed runs FindDuplicates over parsed rows and also returns the
// parsed rows that survived, in their original order.
func (d *Detector) FilterParsed(parsed []models.ParsedTransaction, existing []models.Transaction) ([]models.ParsedTransaction, models.DuplicateDetectionResult) {
	result, keep := d.partition(models.Comparable(parsed), existing)
	unique := make([]models.ParsedTransaction, 0, len(keep))
	for _, i := range keep {
		unique = append(unique, parsed[i])
	}
	return unique, result
}

// partition also returns the indices of the unique rows in newTxns.
func (d *Detector) partition(newTxns, existing []models.Transaction) (models.DuplicateDetectionResult, []int) {
	result := models.DuplicateDetectionResult{
		Duplicates: []models.Transaction{},
		Unique:     []models.Transaction{},
	}
	var keep []int
	for i, n := range newTxns {
		if d.matchesAny(n, existing) {
			result.Duplicates = append(result.Duplicates, n)
			continue
		}
		result.Unique = append(result.Unique, n)
		keep = append(keep, i)
	}
	return result, keep
}

func (d *Detector) matchesAny(t models.Transaction, existing []models.Transaction) bool {
	for _, e := range existing {
		if d.IsDuplicate(t, e) {
			return true
		}
	}
	return false
}

// CalculateDuplicatePercentage returns the share of duplicates in r, 0 to 100.
func CalculateDuplicatePercentage(r models.DuplicateDetectionResult) float64 {
	total := len(r.Duplicates) + len(r.Unique)
	if total == 0 {
		return 0
	}
	return float64(len(r.Duplicates)) / float64(total) * 100
}
