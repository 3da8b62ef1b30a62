package models

import "time"

// ContractStatus is the lifecycle state of a contract
type ContractStatus string

const (
	ContractActive       ContractStatus = "ACTIVE"
	ContractExpiringSoon ContractStatus = "EXPIRING_SOON"
	ContractTerminated   ContractStatus = "TERMINATED"
)

// ActiveStatuses are the statuses that occupy an apartment.
var ActiveStatuses = []ContractStatus{ContractActive, ContractExpiringSoon}

// IsActive reports whether s occupies the apartment.
func (s ContractStatus) IsActive() bool {
	return s == ContractActive || s == ContractExpiringSoon
}

// Contract represents a lease binding a resident to an apartment
type Contract struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ContractNumber string         `gorm:"size:32;not null;uniqueIndex:idx_contracts_contract_number" json:"contract_number"`
	ApartmentID    uint           `gorm:"not null;index" json:"apartment_id"`
	Apartment      *Apartment     `gorm:"foreignKey:ApartmentID" json:"apartment,omitempty"`
	ResidentID     uint           `gorm:"not null;index" json:"resident_id"`
	Resident       *Resident      `gorm:"foreignKey:ResidentID" json:"resident,omitempty"`
	ContractType   string         `gorm:"size:32" json:"contract_type"`
	SignedDate     *time.Time     `gorm:"type:date" json:"signed_date,omitempty"`
	StartDate      time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate        *time.Time     `gorm:"type:date;index" json:"end_date,omitempty"`
	TerminatedDate *time.Time     `gorm:"type:date" json:"terminated_date,omitempty"`
	DepositAmount  float64        `gorm:"type:decimal(12,2)" json:"deposit_amount"`
	Status         ContractStatus `gorm:"size:16;not null;index" json:"status"`
	Notes          string         `gorm:"type:text" json:"notes"`
	IsDeleted      bool           `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsActive reports whether the contract currently occupies its apartment.
func (c *Contract) IsActive() bool {
	return !c.IsDeleted && c.Status.IsActive()
}
