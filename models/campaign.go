package models

import "gorm.io/gorm"

// Campaign statuses that make a referenced segment or tag undeletable.
var activeCampaignStatuses = []string{"scheduled", "running"}

// Campaign is the minimal view of the campaign subsystem this service needs:
// enough to answer whether a segment or tag is referenced by an active
// campaign. Message dispatch lives elsewhere.
type Campaign struct {
	gorm.Model

	Name      string `gorm:"not null" json:"name"`
	Status    string `gorm:"default:'draft';index" json:"status"` // draft, scheduled, running, completed, cancelled
	SegmentID *uint  `gorm:"index" json:"segment_id"`
	CreatedBy uint   `json:"created_by"`

	Tags []Tag `gorm:"many2many:campaign_tags;" json:"tags,omitempty"`
}

// CampaignGate answers reference checks against the campaign subsystem.
// Deletion guards go through this interface so the engine stays decoupled
// from campaign internals.
type CampaignGate interface {
	IsSegmentReferenced(segmentID uint) (bool, error)
	IsTagReferenced(tagID uint) (bool, error)
}

type campaignGate struct {
	db *gorm.DB
}

// NewCampaignGate returns a CampaignGate backed by the campaigns table.
func NewCampaignGate(db *gorm.DB) CampaignGate {
	return &campaignGate{db: db}
}

func (g *campaignGate) IsSegmentReferenced(segmentID uint) (bool, error) {
	var count int64
	err := g.db.Model(&Campaign{}).
		Where("segment_id = ? AND status IN ?", segmentID, activeCampaignStatuses).
		Count(&count).Error
	return count > 0, err
}

func (g *campaignGate) IsTagReferenced(tagID uint) (bool, error) {
	var count int64
	err := g.db.Model(&Campaign{}).
		Joins("JOIN campaign_tags ON campaign_tags.campaign_id = campaigns.id").
		Where("campaign_tags.tag_id = ? AND campaigns.status IN ?", tagID, activeCampaignStatuses).
		Count(&count).Error
	return count > 0, err
}
