// Package contractnumber issues human readable contract numbers of the form
// HD + YYYYMMDD + a zero padded daily sequence, e.g. HD20250315007.
package contractnumber

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/internal/clock"
	"github.com/beesaferoot/leasekeeper/internal/platform/logger"
	"github.com/beesaferoot/leasekeeper/models"
)

const (
	Prefix     = "HD"
	dateLayout = "20060102"
	seqWidth   = 3
)

// Generator computes the next number for the current day.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB) (string, error)
}

type generator struct {
	db    *gorm.DB
	clock clock.Clock
	log   *logger.Logger
}

func NewGenerator(db *gorm.DB, clk clock.Clock, baseLog *logger.Logger) Generator {
	return &generator{db: db, clock: clk, log: baseLog.With("component", "ContractNumberGenerator")}
}

// Next returns max(today's sequence)+1. If nothing was issued today, or the
// lookup fails, it falls back to sequence 1. The result is only a proposal:
// uniqueness is guaranteed by the contract_number index at insert time.
func (g *generator) Next(ctx context.Context, tx *gorm.DB) (string, error) {
	transaction := tx
	if transaction == nil {
		transaction = g.db
	}

	day := clock.Today(g.clock)
	prefix := Prefix + day.Format(dateLayout)

	// Inside tx the lookup runs under a savepoint, so a failed query does not
	// abort the caller's transaction on postgres.
	var numbers []string
	err := transaction.WithContext(ctx).Transaction(func(lookup *gorm.DB) error {
		return lookup.
			Model(&models.Contract{}).
			Where("contract_number LIKE ?", prefix+"%").
			Order("LENGTH(contract_number) DESC").
			Order("contract_number DESC").
			Limit(1).
			Pluck("contract_number", &numbers).Error
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		g.log.Warn("contract number lookup failed, falling back to first sequence", "day", prefix, "error", err)
		return Format(day, 1), nil
	}

	seq := 1
	if len(numbers) > 0 {
		if _, last, ok := Parse(numbers[0]); ok {
			seq = last + 1
		}
	}
	return Format(day, seq), nil
}

// Format renders the number for day and seq.
func Format(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s%0*d", Prefix, day.Format(dateLayout), seqWidth, seq)
}

// Parse splits a contract number into its day and sequence.
func Parse(number string) (time.Time, int, bool) {
	if !strings.HasPrefix(number, Prefix) {
		return time.Time{}, 0, false
	}
	rest := strings.TrimPrefix(number, Prefix)
	if len(rest) < len(dateLayout)+seqWidth {
		return time.Time{}, 0, false
	}

	day, err := time.ParseInLocation(dateLayout, rest[:len(dateLayout)], time.UTC)
	if err != nil {
		return time.Time{}, 0, false
	}
	seq, err := strconv.Atoi(rest[len(dateLayout):])
	if err != nil || seq < 1 {
		return time.Time{}, 0, false
	}
	return day, seq, true
}
