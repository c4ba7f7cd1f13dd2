package models

import (
	"gorm.io/gorm"
)

// User represents a dashboard account. Tenant isolation is handled by the
// hosting environment, so users carry no tenant column here.
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Profile information
	Name     string `json:"name"`
	Timezone string `gorm:"default:'America/Sao_Paulo'" json:"timezone"`
	Language string `gorm:"default:'pt-BR'" json:"language"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	// Relations
	Segments   []Segment   `gorm:"foreignKey:CreatedBy" json:"segments,omitempty"`
	ImportJobs []ImportJob `gorm:"foreignKey:CreatedBy" json:"import_jobs,omitempty"`
}
