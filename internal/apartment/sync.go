// Package apartment exposes the apartment status mutations driven by lease
// events. It never decides when to run them, the lease engine does.
package apartment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/leasekeeper/internal/clock"
	"github.com/beesaferoot/leasekeeper/internal/platform/logger"
	"github.com/beesaferoot/leasekeeper/models"
)

// ErrNotFound is returned when the apartment does not exist.
var ErrNotFound = errors.New("apartment not found")

type Sync interface {
	GetStatus(ctx context.Context, tx *gorm.DB, apartmentID uint) (models.ApartmentStatus, error)
	SetStatus(ctx context.Context, tx *gorm.DB, apartmentID uint, status models.ApartmentStatus) error
	MarkRented(ctx context.Context, tx *gorm.DB, apartmentID uint) error
	MarkAvailable(ctx context.Context, tx *gorm.DB, apartmentID uint) error
	LockForLease(ctx context.Context, tx *gorm.DB, apartmentID uint) (*models.Apartment, error)
	ReleaseForContract(ctx context.Context, tx *gorm.DB, contractID uint) (bool, error)
	Release(ctx context.Context, tx *gorm.DB, apartmentID uint) (bool, error)
}

type statusSync struct {
	db    *gorm.DB
	clock clock.Clock
	log   *logger.Logger
}

func NewSync(db *gorm.DB, clk clock.Clock, baseLog *logger.Logger) Sync {
	return &statusSync{db: db, clock: clk, log: baseLog.With("component", "ApartmentSync")}
}

func (s *statusSync) GetStatus(ctx context.Context, tx *gorm.DB, apartmentID uint) (models.ApartmentStatus, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	var apt models.Apartment
	err := transaction.WithContext(ctx).Select("id", "status").First(&apt, apartmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %d", ErrNotFound, apartmentID)
	}
	if err != nil {
		return "", fmt.Errorf("load apartment %d: %w", apartmentID, err)
	}
	return apt.Status, nil
}

func (s *statusSync) SetStatus(ctx context.Context, tx *gorm.DB, apartmentID uint, status models.ApartmentStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	res := transaction.WithContext(ctx).
		Model(&models.Apartment{}).
		Where("id = ?", apartmentID).
		Updates(map[string]interface{}{"status": status, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return fmt.Errorf("set apartment %d status %s: %w", apartmentID, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, apartmentID)
	}
	s.log.Debug("apartment status set", "apartment_id", apartmentID, "status", status)
	return nil
}

func (s *statusSync) MarkRented(ctx context.Context, tx *gorm.DB, apartmentID uint) error {
	return s.SetStatus(ctx, tx, apartmentID, models.ApartmentRented)
}

func (s *statusSync) MarkAvailable(ctx context.Context, tx *gorm.DB, apartmentID uint) error {
	return s.SetStatus(ctx, tx, apartmentID, models.ApartmentAvailable)
}

// LockForLease loads the apartment with a row lock held until tx ends.
// sqlite has no row locks; there writers are serialised by the database.
func (s *statusSync) LockForLease(ctx context.Context, tx *gorm.DB, apartmentID uint) (*models.Apartment, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	var apt models.Apartment
	err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&apt, apartmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, apartmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock apartment %d: %w", apartmentID, err)
	}
	return &apt, nil
}

// releaseSQL moves an apartment from RENTED to AVAILABLE unless some other
// live contract still occupies it. The apartment is resolved through the
// contract row. Apartments in any other status are left alone.
const releaseSQL = `UPDATE apartments SET status = ?, updated_at = ?
WHERE id = (SELECT c.apartment_id FROM contracts c WHERE c.id = ?)
AND status = ?
AND NOT EXISTS (
	SELECT 1 FROM contracts o
	WHERE o.apartment_id = apartments.id AND o.id <> ? AND o.is_deleted = ? AND o.status IN ?
)`

// ReleaseForContract frees the apartment of contractID. It reports whether
// the apartment was set AVAILABLE, which is false when another live
// contract holds it or the apartment is not RENTED.
func (s *statusSync) ReleaseForContract(ctx context.Context, tx *gorm.DB, contractID uint) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	res := transaction.WithContext(ctx).Exec(releaseSQL,
		models.ApartmentAvailable, s.clock.Now(), contractID, models.ApartmentRented, contractID, false, models.ActiveStatuses)
	if res.Error != nil {
		return false, fmt.Errorf("release apartment of contract %d: %w", contractID, res.Error)
	}
	s.log.Debug("apartment release", "contract_id", contractID, "released", res.RowsAffected > 0)
	return res.RowsAffected > 0, nil
}

// Release moves apartmentID from RENTED to AVAILABLE unless a live contract
// still occupies it.
func (s *statusSync) Release(ctx context.Context, tx *gorm.DB, apartmentID uint) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	res := transaction.WithContext(ctx).
		Model(&models.Apartment{}).
		Where("id = ? AND status = ?", apartmentID, models.ApartmentRented).
		Where("NOT EXISTS (SELECT 1 FROM contracts o WHERE o.apartment_id = apartments.id AND o.is_deleted = ? AND o.status IN ?)",
			false, models.ActiveStatuses).
		Updates(map[string]interface{}{"status": models.ApartmentAvailable, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("release apartment %d: %w", apartmentID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
