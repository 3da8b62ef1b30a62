// Package lease is the contract lifecycle engine. It owns contract records,
// enforces the contract state machine, and keeps apartment status and the
// contract history consistent with every contract mutation.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/leasekeeper/internal/apartment"
	"github.com/beesaferoot/leasekeeper/internal/audit"
	"github.com/beesaferoot/leasekeeper/internal/clock"
	"github.com/beesaferoot/leasekeeper/internal/contractnumber"
	"github.com/beesaferoot/leasekeeper/internal/platform/logger"
	"github.com/beesaferoot/leasekeeper/models"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultNumberAttempts = 5
)

// Actor identifies who performs a lifecycle operation. The zero value is an
// anonymous or system initiated change.
type Actor string

const Anonymous Actor = ""

type Engine struct {
	db         *gorm.DB
	apartments apartment.Sync
	history    audit.Store
	numbers    contractnumber.Generator
	clock      clock.Clock
	metrics    *Metrics
	log        *logger.Logger

	timeout        time.Duration
	numberAttempts int
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithNumberAttempts bounds how many times a creation is retried after a
// contract number collision.
func WithNumberAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.numberAttempts = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithNumberGenerator(g contractnumber.Generator) Option {
	return func(e *Engine) { e.numbers = g }
}

func WithAuditStore(s audit.Store) Option {
	return func(e *Engine) { e.history = s }
}

func WithApartmentSync(s apartment.Sync) Option {
	return func(e *Engine) { e.apartments = s }
}

func NewEngine(db *gorm.DB, baseLog *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:             db,
		clock:          clock.System{},
		log:            baseLog.With("component", "LeaseEngine"),
		timeout:        defaultTimeout,
		numberAttempts: defaultNumberAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.apartments == nil {
		e.apartments = apartment.NewSync(db, e.clock, baseLog)
	}
	if e.history == nil {
		e.history = audit.NewStore(db, baseLog)
	}
	if e.numbers == nil {
		e.numbers = contractnumber.NewGenerator(db, e.clock, baseLog)
	}
	return e
}

// run bounds fn by the engine timeout and turns every failure into an *Error.
func (e *Engine) run(ctx context.Context, op string, log *logger.Logger, fn func(ctx context.Context) error) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := storageError(op, fn(ctx))
	e.metrics.observe(op, started, err)

	switch {
	case err == nil:
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		log.Warn("contract operation rejected", "error", err)
	default:
		log.Error("contract operation failed", "error", err)
	}
	return err
}

func (e *Engine) opLogger(op string, actor Actor, kv ...interface{}) *logger.Logger {
	return e.log.With(append([]interface{}{"op", op, "op_id", uuid.NewString(), "actor", string(actor)}, kv...)...)
}

// CreateContract inserts a new ACTIVE contract with a generated number and
// marks its apartment RENTED. The apartment must exist and must not hold
// another active contract.
func (e *Engine) CreateContract(ctx context.Context, actor Actor, input *models.Contract) (*models.Contract, error) {
	const op = "CreateContract"
	if input == nil {
		return nil, validationError(op, "contract is required")
	}
	if err := validateTerms(op, input); err != nil {
		return nil, err
	}

	log := e.opLogger(op, actor, "apartment_id", input.ApartmentID, "resident_id", input.ResidentID)

	var created *models.Contract
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		for attempt := 1; ; attempt++ {
			c := newContractFrom(input)
			err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return e.createTx(ctx, tx, op, actor, c)
			})
			if err == nil {
				created = c
				return nil
			}
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}

			// The insert hit a unique index. If the apartment is now taken a
			// concurrent creation won; otherwise the number was reused.
			active, checkErr := e.hasActive(ctx, e.db, input.ApartmentID)
			if checkErr != nil {
				return checkErr
			}
			if active {
				return conflictError(op, fmt.Sprintf("apartment %d already has an active contract", input.ApartmentID), err)
			}
			if attempt >= e.numberAttempts {
				return conflictError(op, "could not allocate a unique contract number", err)
			}
			e.metrics.numberRetry()
			log.Warn("contract number collision, retrying", "attempt", attempt, "contract_number", c.ContractNumber)
		}
	})
	if err != nil {
		return nil, err
	}

	log.Info("contract created", "contract_id", created.ID, "contract_number", created.ContractNumber)
	return created, nil
}

func (e *Engine) createTx(ctx context.Context, tx *gorm.DB, op string, actor Actor, c *models.Contract) error {
	apt, err := e.apartments.LockForLease(ctx, tx, c.ApartmentID)
	if errors.Is(err, apartment.ErrNotFound) {
		return validationError(op, "apartment %d does not exist", c.ApartmentID)
	}
	if err != nil {
		return err
	}

	if err := e.requireResident(ctx, tx, op, c.ResidentID); err != nil {
		return err
	}

	active, err := e.hasActive(ctx, tx, apt.ID)
	if err != nil {
		return err
	}
	if active {
		return validationError(op, "apartment %d already has an active contract", apt.ID)
	}

	number, err := e.numbers.Next(ctx, tx)
	if err != nil {
		return fmt.Errorf("generate contract number: %w", err)
	}
	c.ContractNumber = number

	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}

	if err := e.apartments.MarkRented(ctx, tx, apt.ID); err != nil {
		return err
	}

	if _, err := e.history.Append(ctx, tx, audit.Entry{
		ContractID: c.ID,
		Action:     models.ActionCreated,
		NewValue:   c,
		Reason:     "contract created",
		Actor:      string(actor),
	}); err != nil {
		return auditError(op, err)
	}
	return nil
}

// RenewContract moves the end date of a live contract. Status is unchanged.
func (e *Engine) RenewContract(ctx context.Context, actor Actor, contractID uint, newEndDate time.Time) error {
	const op = "RenewContract"
	if newEndDate.IsZero() {
		return validationError(op, "new end date is required")
	}
	newEnd := clock.Date(newEndDate)
	log := e.opLogger(op, actor, "contract_id", contractID)

	err := e.run(ctx, op, log, func(ctx context.Context) error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := e.loadLive(ctx, tx, op, contractID)
			if err != nil {
				return err
			}
			if newEnd.Before(c.StartDate) {
				return validationError(op, "new end date %s is before start date %s",
					newEnd.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
			}

			before := *c
			if err := tx.Model(&models.Contract{}).Where("id = ?", c.ID).Update("end_date", newEnd).Error; err != nil {
				return fmt.Errorf("update end date: %w", err)
			}
			c.EndDate = &newEnd

			if _, err := e.history.Append(ctx, tx, audit.Entry{
				ContractID: c.ID,
				Action:     models.ActionRenewed,
				OldValue:   &before,
				NewValue:   c,
				OldEndDate: before.EndDate,
				NewEndDate: &newEnd,
				Reason:     fmt.Sprintf("end date %s -> %s", formatDate(before.EndDate), newEnd.Format(time.DateOnly)),
				Actor:      string(actor),
			}); err != nil {
				return auditError(op, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Info("contract renewed", "new_end_date", newEnd.Format(time.DateOnly))
	return nil
}

// TerminateContract ends a live contract today and frees its apartment.
// Terminating an already TERMINATED contract keeps the original termination
// date and notes but still records a TERMINATED history entry.
func (e *Engine) TerminateContract(ctx context.Context, actor Actor, contractID uint, reason string) error {
	const op = "TerminateContract"
	log := e.opLogger(op, actor, "contract_id", contractID)

	var repeated bool
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := e.loadLive(ctx, tx, op, contractID)
			if err != nil {
				return err
			}

			before := *c
			repeated = c.Status == models.ContractTerminated
			if !repeated {
				today := clock.Today(e.clock)
				c.Status = models.ContractTerminated
				c.TerminatedDate = &today
				c.Notes = appendNote(c.Notes, terminationNote(today, reason))

				if err := tx.Model(&models.Contract{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
					"status":          c.Status,
					"terminated_date": today,
					"notes":           c.Notes,
				}).Error; err != nil {
					return fmt.Errorf("terminate contract: %w", err)
				}
			}

			if _, err := e.apartments.ReleaseForContract(ctx, tx, c.ID); err != nil {
				return err
			}

			if _, err := e.history.Append(ctx, tx, audit.Entry{
				ContractID: c.ID,
				Action:     models.ActionTerminated,
				OldValue:   &before,
				NewValue:   c,
				Reason:     reason,
				Actor:      string(actor),
			}); err != nil {
				return auditError(op, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Info("contract terminated", "repeated", repeated)
	return nil
}

// DeleteContract soft-deletes a contract. Status is left as it was and the
// history is kept; the apartment is freed unless another contract holds it.
func (e *Engine) DeleteContract(ctx context.Context, actor Actor, contractID uint) error {
	const op = "DeleteContract"
	log := e.opLogger(op, actor, "contract_id", contractID)

	err := e.run(ctx, op, log, func(ctx context.Context) error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := e.loadLive(ctx, tx, op, contractID)
			if err != nil {
				return err
			}

			before := *c
			now := e.clock.Now()
			c.IsDeleted = true
			c.DeletedAt = &now

			if err := tx.Model(&models.Contract{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
			}).Error; err != nil {
				return fmt.Errorf("soft delete contract: %w", err)
			}

			if _, err := e.apartments.ReleaseForContract(ctx, tx, c.ID); err != nil {
				return err
			}

			if _, err := e.history.Append(ctx, tx, audit.Entry{
				ContractID: c.ID,
				Action:     models.ActionDeleted,
				OldValue:   &before,
				NewValue:   c,
				Reason:     "contract deleted",
				Actor:      string(actor),
			}); err != nil {
				return auditError(op, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Info("contract deleted")
	return nil
}

// UpdateContract overwrites the editable terms of a live contract. Number,
// status and termination date are owned by the other operations. Moving an
// active contract to another apartment re-syncs both apartments.
func (e *Engine) UpdateContract(ctx context.Context, actor Actor, input *models.Contract) error {
	const op = "UpdateContract"
	if input == nil {
		return validationError(op, "contract is required")
	}
	if err := validateTerms(op, input); err != nil {
		return err
	}
	terms := newContractFrom(input)
	log := e.opLogger(op, actor, "contract_id", input.ID)

	err := e.run(ctx, op, log, func(ctx context.Context) error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := e.loadLive(ctx, tx, op, input.ID)
			if err != nil {
				return err
			}
			if input.ContractNumber != "" && input.ContractNumber != c.ContractNumber {
				return validationError(op, "contract number cannot be changed")
			}
			if input.Status != "" && input.Status != c.Status {
				return validationError(op, "status cannot be changed by update")
			}

			moved := terms.ApartmentID != c.ApartmentID
			if moved {
				if _, err := e.apartments.LockForLease(ctx, tx, terms.ApartmentID); err != nil {
					if errors.Is(err, apartment.ErrNotFound) {
						return validationError(op, "apartment %d does not exist", terms.ApartmentID)
					}
					return err
				}
				if c.IsActive() {
					active, err := e.hasActive(ctx, tx, terms.ApartmentID)
					if err != nil {
						return err
					}
					if active {
						return validationError(op, "apartment %d already has an active contract", terms.ApartmentID)
					}
				}
			}
			if terms.ResidentID != c.ResidentID {
				if err := e.requireResident(ctx, tx, op, terms.ResidentID); err != nil {
					return err
				}
			}

			before := *c
			c.ApartmentID = terms.ApartmentID
			c.ResidentID = terms.ResidentID
			c.ContractType = terms.ContractType
			c.SignedDate = terms.SignedDate
			c.StartDate = terms.StartDate
			c.EndDate = terms.EndDate
			c.DepositAmount = terms.DepositAmount
			c.Notes = terms.Notes

			if err := tx.Model(&models.Contract{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
				"apartment_id":   c.ApartmentID,
				"resident_id":    c.ResidentID,
				"contract_type":  c.ContractType,
				"signed_date":    c.SignedDate,
				"start_date":     c.StartDate,
				"end_date":       c.EndDate,
				"deposit_amount": c.DepositAmount,
				"notes":          c.Notes,
			}).Error; err != nil {
				return fmt.Errorf("update contract: %w", err)
			}

			if moved && c.IsActive() {
				if err := e.apartments.MarkRented(ctx, tx, c.ApartmentID); err != nil {
					return err
				}
				if _, err := e.apartments.Release(ctx, tx, before.ApartmentID); err != nil {
					return err
				}
			}

			if _, err := e.history.Append(ctx, tx, audit.Entry{
				ContractID: c.ID,
				Action:     models.ActionUpdated,
				OldValue:   &before,
				NewValue:   c,
				Reason:     "contract updated",
				Actor:      string(actor),
			}); err != nil {
				return auditError(op, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Info("contract updated")
	return nil
}

// loadLive loads a non-deleted contract and locks its row for the rest of tx.
func (e *Engine) loadLive(ctx context.Context, tx *gorm.DB, op string, contractID uint) (*models.Contract, error) {
	var c models.Contract
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_deleted = ?", contractID, false).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(op, "contract %d not found", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("load contract %d: %w", contractID, err)
	}
	return &c, nil
}

func (e *Engine) hasActive(ctx context.Context, tx *gorm.DB, apartmentID uint) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.Contract{}).
		Where("apartment_id = ? AND is_deleted = ? AND status IN ?", apartmentID, false, models.ActiveStatuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check active contracts of apartment %d: %w", apartmentID, err)
	}
	return count > 0, nil
}

func (e *Engine) requireResident(ctx context.Context, tx *gorm.DB, op string, residentID uint) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Resident{}).Where("id = ?", residentID).Count(&count).Error; err != nil {
		return fmt.Errorf("check resident %d: %w", residentID, err)
	}
	if count == 0 {
		return validationError(op, "resident %d does not exist", residentID)
	}
	return nil
}

func validateTerms(op string, c *models.Contract) error {
	switch {
	case c.ApartmentID == 0:
		return validationError(op, "apartment is required")
	case c.ResidentID == 0:
		return validationError(op, "resident is required")
	case c.StartDate.IsZero():
		return validationError(op, "start date is required")
	case c.EndDate != nil && clock.Date(*c.EndDate).Before(clock.Date(c.StartDate)):
		return validationError(op, "end date is before start date")
	case c.DepositAmount < 0:
		return validationError(op, "deposit amount cannot be negative")
	}
	return nil
}

// newContractFrom copies the caller supplied terms into a fresh ACTIVE
// record with normalised dates and no associations.
func newContractFrom(in *models.Contract) *models.Contract {
	return &models.Contract{
		ApartmentID:   in.ApartmentID,
		ResidentID:    in.ResidentID,
		ContractType:  in.ContractType,
		SignedDate:    datePtr(in.SignedDate),
		StartDate:     clock.Date(in.StartDate),
		EndDate:       datePtr(in.EndDate),
		DepositAmount: in.DepositAmount,
		Status:        models.ContractActive,
		Notes:         in.Notes,
	}
}

func datePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := clock.Date(*t)
	return &d
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "open-ended"
	}
	return t.Format(time.DateOnly)
}

func terminationNote(day time.Time, reason string) string {
	note := fmt.Sprintf("[Terminated %s]", day.Format(time.DateOnly))
	if reason != "" {
		note += " " + reason
	}
	return note
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
