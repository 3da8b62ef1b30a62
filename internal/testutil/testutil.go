package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/internal/database"
	"github.com/beesaferoot/leasekeeper/internal/platform/logger"
	"github.com/beesaferoot/leasekeeper/migration/driver"
	"github.com/beesaferoot/leasekeeper/migration/schema"
	"github.com/beesaferoot/leasekeeper/models"
)

// Logger returns a logger that discards output.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.NewNop()
}

// DB returns a fresh, fully migrated sqlite database private to the test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := database.OpenSQLite(filepath.Join(tb.TempDir(), "lease.db"))
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if _, err := driver.NewMigrator(db, schema.All()...).Up(context.Background()); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	return db
}

// Property is one seeded building/floor/apartment plus a resident.
type Property struct {
	Building  models.Building
	Floor     models.Floor
	Apartment models.Apartment
	Resident  models.Resident
}

// SeedProperty inserts a building with one floor, one AVAILABLE apartment
// and one resident.
func SeedProperty(tb testing.TB, db *gorm.DB, apartmentNumber string) *Property {
	tb.Helper()

	p := &Property{}
	p.Building = models.Building{Name: "Block " + apartmentNumber, Address: "1 Lease Street"}
	mustCreate(tb, db, &p.Building)

	p.Floor = models.Floor{BuildingID: p.Building.ID, FloorNumber: 1}
	mustCreate(tb, db, &p.Floor)

	p.Apartment = models.Apartment{FloorID: p.Floor.ID, ApartmentNumber: apartmentNumber, Status: models.ApartmentAvailable}
	mustCreate(tb, db, &p.Apartment)

	p.Resident = models.Resident{FullName: "Resident " + apartmentNumber, Phone: "0900000000"}
	mustCreate(tb, db, &p.Resident)

	return p
}

// SeedApartment adds another AVAILABLE apartment on the floor of p.
func SeedApartment(tb testing.TB, db *gorm.DB, p *Property, apartmentNumber string) models.Apartment {
	tb.Helper()
	apt := models.Apartment{FloorID: p.Floor.ID, ApartmentNumber: apartmentNumber, Status: models.ApartmentAvailable}
	mustCreate(tb, db, &apt)
	return apt
}

// ApartmentStatus reads the current status of an apartment.
func ApartmentStatus(tb testing.TB, db *gorm.DB, apartmentID uint) models.ApartmentStatus {
	tb.Helper()
	var apt models.Apartment
	if err := db.First(&apt, apartmentID).Error; err != nil {
		tb.Fatalf("load apartment %d: %v", apartmentID, err)
	}
	return apt.Status
}

// Date builds a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr is Date returning a pointer.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}

func mustCreate(tb testing.TB, db *gorm.DB, value interface{}) {
	tb.Helper()
	if err := db.Create(value).Error; err != nil {
		tb.Fatalf("seed %T: %v", value, err)
	}
}
