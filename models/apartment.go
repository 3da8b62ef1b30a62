package models

import "time"

// ApartmentStatus is the occupancy state of an apartment
type ApartmentStatus string

const (
	ApartmentAvailable   ApartmentStatus = "AVAILABLE"
	ApartmentRented      ApartmentStatus = "RENTED"
	ApartmentMaintenance ApartmentStatus = "MAINTENANCE"
)

// Building represents a building of the complex
type Building struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Address   string    `gorm:"size:255" json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Floor represents a floor within a building
type Floor struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BuildingID  uint      `gorm:"not null;index" json:"building_id"`
	Building    *Building `gorm:"foreignKey:BuildingID" json:"building,omitempty"`
	FloorNumber int       `gorm:"not null" json:"floor_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Apartment represents an apartment unit on a floor. Only Status is driven
// by the lease engine, everything else belongs to the apartment owner.
type Apartment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	FloorID         uint            `gorm:"not null;index" json:"floor_id"`
	Floor           *Floor          `gorm:"foreignKey:FloorID" json:"floor,omitempty"`
	ApartmentNumber string          `gorm:"size:32;not null" json:"apartment_number"`
	Area            float64         `gorm:"type:decimal(8,2)" json:"area"`
	Status          ApartmentStatus `gorm:"size:16;not null;default:AVAILABLE;index" json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
