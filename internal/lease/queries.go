package lease

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/internal/clock"
	"github.com/beesaferoot/leasekeeper/models"
)

// GetContract returns a non-deleted contract with its apartment and resident.
func (e *Engine) GetContract(ctx context.Context, contractID uint) (*models.Contract, error) {
	const op = "GetContract"
	log := e.opLogger(op, Anonymous, "contract_id", contractID)

	var c models.Contract
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		err := e.db.WithContext(ctx).
			Preload("Apartment").
			Preload("Resident").
			Where("id = ? AND is_deleted = ?", contractID, false).
			First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError(op, "contract %d not found", contractID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (e *Engine) GetContractByNumber(ctx context.Context, number string) (*models.Contract, error) {
	const op = "GetContractByNumber"
	if number == "" {
		return nil, validationError(op, "contract number is required")
	}
	log := e.opLogger(op, Anonymous, "contract_number", number)

	var c models.Contract
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		err := e.db.WithContext(ctx).
			Preload("Apartment").
			Preload("Resident").
			Where("contract_number = ? AND is_deleted = ?", number, false).
			First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError(op, "contract %s not found", number)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByApartment returns the live ACTIVE or EXPIRING_SOON contracts of an
// apartment. Under the exclusivity rule there is at most one.
func (e *Engine) ListByApartment(ctx context.Context, apartmentID uint) ([]models.Contract, error) {
	const op = "ListByApartment"
	log := e.opLogger(op, Anonymous, "apartment_id", apartmentID)

	var contracts []models.Contract
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		return e.db.WithContext(ctx).
			Preload("Resident").
			Where("apartment_id = ? AND is_deleted = ? AND status IN ?", apartmentID, false, models.ActiveStatuses).
			Order("start_date DESC").
			Order("id DESC").
			Find(&contracts).Error
	})
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

// ListByBuilding returns every non-deleted contract of the apartments in a
// building, whatever its status.
func (e *Engine) ListByBuilding(ctx context.Context, buildingID uint) ([]models.Contract, error) {
	const op = "ListByBuilding"
	log := e.opLogger(op, Anonymous, "building_id", buildingID)

	var contracts []models.Contract
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		return e.db.WithContext(ctx).
			Preload("Apartment").
			Preload("Resident").
			Joins("JOIN apartments ON apartments.id = contracts.apartment_id").
			Joins("JOIN floors ON floors.id = apartments.floor_id").
			Where("floors.building_id = ? AND contracts.is_deleted = ?", buildingID, false).
			Order("contracts.start_date DESC").
			Order("contracts.id DESC").
			Find(&contracts).Error
	})
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

// ListExpiring returns live, non-terminated contracts whose end date falls
// within [today, today+days], soonest first.
func (e *Engine) ListExpiring(ctx context.Context, days int) ([]models.Contract, error) {
	const op = "ListExpiring"
	if days < 0 {
		return nil, validationError(op, "days must not be negative, got %d", days)
	}
	log := e.opLogger(op, Anonymous, "days", days)

	today := clock.Today(e.clock)
	until := today.AddDate(0, 0, days)

	var contracts []models.Contract
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		return e.db.WithContext(ctx).
			Preload("Apartment").
			Preload("Resident").
			Where("is_deleted = ? AND status <> ?", false, models.ContractTerminated).
			Where("end_date IS NOT NULL AND end_date >= ? AND end_date <= ?", today, until).
			Order("end_date ASC").
			Order("id ASC").
			Find(&contracts).Error
	})
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

// HasActiveContract reports whether a live ACTIVE or EXPIRING_SOON contract
// occupies the apartment.
func (e *Engine) HasActiveContract(ctx context.Context, apartmentID uint) (bool, error) {
	const op = "HasActiveContract"
	log := e.opLogger(op, Anonymous, "apartment_id", apartmentID)

	var active bool
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		var err error
		active, err = e.hasActive(ctx, e.db, apartmentID)
		return err
	})
	return active, err
}

// GenerateContractNumber previews the number the next creation would get
// today. It reserves nothing.
func (e *Engine) GenerateContractNumber(ctx context.Context) (string, error) {
	const op = "GenerateContractNumber"
	log := e.opLogger(op, Anonymous)

	var number string
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		var err error
		number, err = e.numbers.Next(ctx, nil)
		return err
	})
	return number, err
}

// History returns the audit trail of a contract, newest first. Soft-deleted
// contracts keep their history.
func (e *Engine) History(ctx context.Context, contractID uint) ([]models.ContractHistory, error) {
	const op = "History"
	log := e.opLogger(op, Anonymous, "contract_id", contractID)

	var entries []models.ContractHistory
	err := e.run(ctx, op, log, func(ctx context.Context) error {
		var count int64
		if err := e.db.WithContext(ctx).Model(&models.Contract{}).Where("id = ?", contractID).Count(&count).Error; err != nil {
			return fmt.Errorf("check contract %d: %w", contractID, err)
		}
		if count == 0 {
			return notFoundError(op, "contract %d not found", contractID)
		}

		var err error
		entries, err = e.history.HistoryFor(ctx, nil, contractID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
