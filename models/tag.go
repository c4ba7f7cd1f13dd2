package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

// ErrSystemTag is returned when a caller tries to delete a system tag.
var ErrSystemTag = errors.New("system tags cannot be deleted")

// Tag categorizes contacts for segmentation. A small fixed set of system
// tags encodes the contact lifecycle status and is not user-deletable.
type Tag struct {
	gorm.Model

	Name        string `gorm:"not null;uniqueIndex" json:"name"`
	Slug        string `gorm:"index" json:"slug"`
	Color       string `gorm:"default:'#6366f1'" json:"color"` // hex #RRGGBB
	Description string `gorm:"type:text" json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	IsSystem    bool   `gorm:"default:false;index" json:"is_system"`
}

var (
	slugCleaner    = regexp.MustCompile(`[^a-z0-9]+`)
	slugNormalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slugify builds a URL-safe identifier from a tag name. Diacritics are
// stripped so "Voluntário" and "Voluntario" produce the same slug.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	if stripped, _, err := transform.String(slugNormalizer, slug); err == nil {
		slug = stripped
	}
	slug = slugCleaner.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// BeforeSave generates the slug when one was not provided.
func (t *Tag) BeforeSave(tx *gorm.DB) error {
	if t.Slug == "" {
		t.Slug = Slugify(t.Name)
	}
	return nil
}

// BeforeDelete blocks deletion of system tags.
func (t *Tag) BeforeDelete(tx *gorm.DB) error {
	if t.IsSystem {
		return ErrSystemTag
	}
	return nil
}

// ContactTag joins contacts to tags. Rows are hard-deleted so that a removed
// tag can be re-added without tripping the unique index.
type ContactTag struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ContactID uint      `gorm:"not null;index;uniqueIndex:idx_contact_tag" json:"contact_id"`
	TagID     uint      `gorm:"not null;index;uniqueIndex:idx_contact_tag" json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GetSystemTag returns the system tag for the given lifecycle slug.
func GetSystemTag(db *gorm.DB, slug string) (*Tag, error) {
	var tag Tag
	if err := db.Where("slug = ? AND is_system = ?", slug, true).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// ContactCount returns how many contacts currently carry this tag.
func (t *Tag) ContactCount(db *gorm.DB) int64 {
	var count int64
	db.Model(&ContactTag{}).Where("tag_id = ?", t.ID).Count(&count)
	return count
}
