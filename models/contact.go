package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Contact provenance values.
const (
	SourceImport = "import"
	SourceForm   = "form"
	SourceManual = "manual"
	SourceAPI    = "api"
)

// Contact represents a single person in the campaign base. Contacts are soft
// deleted; deletion is a terminal explicit operation, distinct from status
// changes.
type Contact struct {
	gorm.Model

	Name  string `gorm:"not null" json:"name"`
	Phone string `gorm:"not null;uniqueIndex" json:"phone"` // canonical digits, 55 + DDD + number
	Email string `gorm:"index" json:"email"`
	CPF   string `json:"cpf"`

	// Location
	City         string `gorm:"index" json:"city"`
	Neighborhood string `json:"neighborhood"`
	State        string `gorm:"index" json:"state"`
	ZipCode      string `json:"zip_code"`

	// Electoral registry
	ElectoralZone    string `json:"electoral_zone"`
	ElectoralSection string `json:"electoral_section"`

	// Demographics
	BirthDate *time.Time `json:"birth_date"`
	Gender    string     `json:"gender"` // M, F, O

	// WhatsApp consent
	WhatsappOptIn bool       `gorm:"default:false;index" json:"whatsapp_opt_in"`
	OptInDate     *time.Time `json:"opt_in_date"`

	// Metadata
	Source    string         `gorm:"default:'manual'" json:"source"` // import, form, manual, api
	ExtraData datatypes.JSON `json:"extra_data,omitempty"`

	// Written by AddToBlacklist so RemoveFromBlacklist can restore the
	// status the contact held before.
	PreBlacklistStatus string `json:"-"`

	Tags []Tag `gorm:"many2many:contact_tags;" json:"tags,omitempty"`
}

// Age computes the contact's age in full years as of the given date. Returns
// -1 when no birth date is known.
func (ct *Contact) Age(now time.Time) int {
	if ct.BirthDate == nil {
		return -1
	}
	birth := *ct.BirthDate
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() ||
		(now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// CanReceiveMessages reports whether the contact consented to WhatsApp
// messages and has a phone number on file.
func (ct *Contact) CanReceiveMessages() bool {
	return ct.WhatsappOptIn && ct.Phone != ""
}
