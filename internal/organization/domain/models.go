// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization is a GST-registered business keeping books in bizbooks.
type Organization struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"type:text;not null" json:"name"`
	GSTIN     string            `gorm:"column:gstin;type:text" json:"gstin,omitempty"`
	PAN       string            `gorm:"column:pan;type:text" json:"pan,omitempty"`
	StateCode string            `gorm:"type:text" json:"state_code,omitempty"`
	Currency  string            `gorm:"type:text;not null;default:'INR'" json:"currency"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

type PartyKind string

const (
	PartyKindCustomer PartyKind = "customer"
	PartyKindVendor   PartyKind = "vendor"
)

// Party is a customer or vendor of an organization.
type Party struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Kind      PartyKind    `gorm:"type:text;not null" json:"kind"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	GSTIN     string       `gorm:"column:gstin;type:text" json:"gstin,omitempty"`
	PAN       string       `gorm:"column:pan;type:text" json:"pan,omitempty"`
	StateCode string       `gorm:"type:text" json:"state_code,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Party) TableName() string { return "parties" }
