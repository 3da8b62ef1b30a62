// Package audit is the append-only contract history log.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/internal/platform/logger"
	"github.com/beesaferoot/leasekeeper/models"
)

// ErrInvalidEntry is returned for entries that cannot be written.
var ErrInvalidEntry = errors.New("invalid history entry")

// Entry is one lifecycle event to record. Actor may be empty for anonymous
// or system initiated changes.
type Entry struct {
	ContractID uint
	Action     models.HistoryAction
	OldValue   interface{}
	NewValue   interface{}
	OldEndDate *time.Time
	NewEndDate *time.Time
	Reason     string
	Actor      string
}

type Store interface {
	Append(ctx context.Context, tx *gorm.DB, entry Entry) (uint, error)
	HistoryFor(ctx context.Context, tx *gorm.DB, contractID uint) ([]models.ContractHistory, error)
}

type store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) Store {
	return &store{db: db, log: baseLog.With("component", "AuditStore")}
}

// Append inserts one immutable history row and returns its id.
func (s *store) Append(ctx context.Context, tx *gorm.DB, entry Entry) (uint, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	if entry.ContractID == 0 {
		return 0, fmt.Errorf("%w: missing contract id", ErrInvalidEntry)
	}
	switch entry.Action {
	case models.ActionCreated, models.ActionUpdated, models.ActionRenewed, models.ActionTerminated, models.ActionDeleted:
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, entry.Action)
	}

	oldValue, err := snapshot(entry.OldValue)
	if err != nil {
		return 0, fmt.Errorf("%w: old value: %v", ErrInvalidEntry, err)
	}
	newValue, err := snapshot(entry.NewValue)
	if err != nil {
		return 0, fmt.Errorf("%w: new value: %v", ErrInvalidEntry, err)
	}

	row := &models.ContractHistory{
		ContractID: entry.ContractID,
		Action:     entry.Action,
		OldValue:   oldValue,
		NewValue:   newValue,
		Reason:     entry.Reason,
	}
	if entry.Action == models.ActionRenewed {
		row.OldEndDate = entry.OldEndDate
		row.NewEndDate = entry.NewEndDate
	}
	if entry.Actor != "" {
		actor := entry.Actor
		row.CreatedBy = &actor
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("append %s history for contract %d: %w", entry.Action, entry.ContractID, err)
	}

	s.log.Debug("history appended", "contract_id", entry.ContractID, "action", entry.Action, "history_id", row.ID)
	return row.ID, nil
}

// HistoryFor returns every entry of a contract, newest first.
func (s *store) HistoryFor(ctx context.Context, tx *gorm.DB, contractID uint) ([]models.ContractHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	var results []models.ContractHistory
	if err := transaction.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("load history for contract %d: %w", contractID, err)
	}
	return results, nil
}

// snapshot renders v as JSON. A missing value is stored as the JSON null
// literal so the column always scans back cleanly.
func snapshot(v interface{}) (datatypes.JSON, error) {
	switch val := v.(type) {
	case nil:
		return datatypes.JSON("null"), nil
	case datatypes.JSON:
		return val, nil
	case json.RawMessage:
		return datatypes.JSON(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
