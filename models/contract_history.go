package models

import (
	"time"

	"gorm.io/datatypes"
)

// HistoryAction names a lifecycle event recorded for a contract
type HistoryAction string

const (
	ActionCreated    HistoryAction = "CREATED"
	ActionUpdated    HistoryAction = "UPDATED"
	ActionRenewed    HistoryAction = "RENEWED"
	ActionTerminated HistoryAction = "TERMINATED"
	ActionDeleted    HistoryAction = "DELETED"
)

// ContractHistory is an immutable audit entry. Rows are only ever inserted.
type ContractHistory struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ContractID uint           `gorm:"not null;index" json:"contract_id"`
	Contract   *Contract      `gorm:"foreignKey:ContractID" json:"-"`
	Action     HistoryAction  `gorm:"size:16;not null" json:"action"`
	OldValue   datatypes.JSON `json:"old_value,omitempty"`
	NewValue   datatypes.JSON `json:"new_value,omitempty"`
	OldEndDate *time.Time     `gorm:"type:date" json:"old_end_date,omitempty"`
	NewEndDate *time.Time     `gorm:"type:date" json:"new_end_date,omitempty"`
	Reason     string         `gorm:"type:text" json:"reason"`
	CreatedBy  *string        `gorm:"size:64" json:"created_by,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ContractHistory) TableName() string {
	return "contract_history"
}
