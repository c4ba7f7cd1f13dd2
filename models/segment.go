package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrSegmentInUse is returned when a segment delete is blocked by an active
// campaign referencing it.
var ErrSegmentInUse = errors.New("segment is referenced by an active campaign")

// Segment is a named, persisted filter spec with a cached audience size.
// The cached count is a point-in-time snapshot: it is refreshed only on
// explicit segment writes and previews, never by contact or tag mutations.
type Segment struct {
	gorm.Model

	Name        string         `gorm:"not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Filters     datatypes.JSON `json:"filters"`

	// Cached audience resolution
	CachedCount    int        `gorm:"default:0" json:"cached_count"`
	LeadCount      int        `gorm:"default:0" json:"lead_count"`
	ApoiadorCount  int        `gorm:"default:0" json:"apoiador_count"`
	BlacklistCount int        `gorm:"default:0" json:"blacklist_count"`
	CachedAt       *time.Time `json:"cached_at"`

	IsActive  bool `gorm:"default:true" json:"is_active"`
	CreatedBy uint `gorm:"index" json:"created_by"`
}

// Spec parses the segment's stored filter object.
func (s *Segment) Spec() (FilterSpec, error) {
	return ParseFilterSpec(s.Filters)
}

// AudienceQuery compiles the segment's filters over the messageable contact
// base (opt-in contacts only).
func (s *Segment) AudienceQuery(db *gorm.DB, now time.Time) (*gorm.DB, error) {
	spec, err := s.Spec()
	if err != nil {
		return nil, err
	}
	return AudienceQuery(db, spec, now), nil
}

// AudienceQuery compiles a filter spec over opt-in contacts. Used for both
// persisted segment resolution and ad hoc previews.
func AudienceQuery(db *gorm.DB, spec FilterSpec, now time.Time) *gorm.DB {
	query := db.Model(&Contact{}).Where("contacts.whatsapp_opt_in = ?", true)
	return spec.Apply(query, now)
}

// ResolveAudience returns the exact match count and a bounded sample in
// stable id order. The sample query runs only when sampleSize > 0, so
// count-only callers never materialize the result set.
func ResolveAudience(db *gorm.DB, spec FilterSpec, now time.Time, sampleSize int) (int64, []Contact, error) {
	var count int64
	if err := AudienceQuery(db, spec, now).Count(&count).Error; err != nil {
		return 0, nil, err
	}

	var sample []Contact
	if sampleSize > 0 {
		err := AudienceQuery(db, spec, now).
			Preload("Tags").
			Order("contacts.id").
			Limit(sampleSize).
			Find(&sample).Error
		if err != nil {
			return 0, nil, err
		}
	}
	return count, sample, nil
}

// RefreshCount resolves the audience and persists the cached count plus the
// per-status breakdown. Called synchronously on create, update, duplicate
// and preview so callers never read a freshly written segment with a stale
// count.
func (s *Segment) RefreshCount(db *gorm.DB) (int64, error) {
	spec, err := s.Spec()
	if err != nil {
		return 0, err
	}
	now := time.Now()

	total, _, err := ResolveAudience(db, spec, now, 0)
	if err != nil {
		return 0, err
	}

	breakdown := map[ContactStatus]int64{}
	for _, status := range []ContactStatus{StatusLead, StatusApoiador, StatusBlacklist} {
		scoped := FilterSpec{}
		for key, value := range spec {
			scoped[key] = value
		}
		scoped[FilterContactStatus] = []byte(`"` + string(status) + `"`)
		count, _, err := ResolveAudience(db, scoped, now, 0)
		if err != nil {
			return 0, err
		}
		breakdown[status] = count
	}

	cachedAt := now
	s.CachedCount = int(total)
	s.LeadCount = int(breakdown[StatusLead])
	s.ApoiadorCount = int(breakdown[StatusApoiador])
	s.BlacklistCount = int(breakdown[StatusBlacklist])
	s.CachedAt = &cachedAt

	err = db.Model(&Segment{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
		"cached_count":    s.CachedCount,
		"lead_count":      s.LeadCount,
		"apoiador_count":  s.ApoiadorCount,
		"blacklist_count": s.BlacklistCount,
		"cached_at":       s.CachedAt,
	}).Error
	return total, err
}

// Sample returns a bounded preview of the segment's audience.
func (s *Segment) Sample(db *gorm.DB, limit int) ([]Contact, error) {
	spec, err := s.Spec()
	if err != nil {
		return nil, err
	}
	_, sample, err := ResolveAudience(db, spec, time.Now(), limit)
	return sample, err
}
