package models

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactStatus is the lifecycle classification derived from system tags.
type ContactStatus string

const (
	StatusLead      ContactStatus = "lead"
	StatusApoiador  ContactStatus = "apoiador"
	StatusBlacklist ContactStatus = "blacklist"
	StatusNone      ContactStatus = "sem_status"
)

// Slugs of the system tags that encode lifecycle status. These are the only
// tags the transition engine touches; everything else is a user tag.
const (
	SlugLead      = "lead"
	SlugApoiador  = "apoiador"
	SlugBlacklist = "blacklist"
)

// ErrInvalidTransition is returned when the contact's current status is not a
// legal source state for the requested transition. Transitions whose target
// state is already reached are no-op successes, not errors.
var ErrInvalidTransition = errors.New("invalid status transition")

// LifecycleSlugs lists the system tag slugs in derivation precedence order.
var LifecycleSlugs = []string{SlugBlacklist, SlugApoiador, SlugLead}

// DeriveStatus maps a tag set to exactly one lifecycle status. The transition
// engine keeps at most one lifecycle tag on a contact; the precedence order
// blacklist > apoiador > lead covers any transient window where two could be
// visible.
func DeriveStatus(tags []Tag) ContactStatus {
	has := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if tag.IsSystem {
			has[tag.Slug] = true
		}
	}
	switch {
	case has[SlugBlacklist]:
		return StatusBlacklist
	case has[SlugApoiador]:
		return StatusApoiador
	case has[SlugLead]:
		return StatusLead
	}
	return StatusNone
}

// lockForTransition takes a row lock on the contact so concurrent transitions
// on the same contact serialize around the status read. Without it two
// transactions can both read the old status and both insert their lifecycle
// tag. SQLite serializes writers on its own and rejects FOR UPDATE.
func (ct *Contact) lockForTransition(tx *gorm.DB) error {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q.Select("id").First(&Contact{}, ct.ID).Error
}

// currentStatus derives the contact's status from the lifecycle tags stored
// in the database.
func (ct *Contact) currentStatus(tx *gorm.DB) (ContactStatus, error) {
	var tags []Tag
	err := tx.
		Joins("JOIN contact_tags ON contact_tags.tag_id = tags.id").
		Where("contact_tags.contact_id = ? AND tags.is_system = ?", ct.ID, true).
		Find(&tags).Error
	if err != nil {
		return StatusNone, err
	}
	return DeriveStatus(tags), nil
}

// Status derives the contact's current lifecycle status.
func (ct *Contact) Status(db *gorm.DB) (ContactStatus, error) {
	return ct.currentStatus(db)
}

// setLifecycleTag removes every lifecycle tag from the contact and adds the
// one for the given slug. Callers run it inside a transaction so readers
// never observe zero or two lifecycle tags.
func (ct *Contact) setLifecycleTag(tx *gorm.DB, slug string) error {
	target, err := GetSystemTag(tx, slug)
	if err != nil {
		return err
	}

	var systemIDs []uint
	if err := tx.Model(&Tag{}).
		Where("slug IN ? AND is_system = ?", LifecycleSlugs, true).
		Pluck("id", &systemIDs).Error; err != nil {
		return err
	}

	if err := tx.Where("contact_id = ? AND tag_id IN ?", ct.ID, systemIDs).
		Delete(&ContactTag{}).Error; err != nil {
		return err
	}
	return tx.Create(&ContactTag{ContactID: ct.ID, TagID: target.ID}).Error
}

// Promote moves a contact from lead to apoiador. Promoting a contact that is
// already an apoiador is a no-op.
func (ct *Contact) Promote(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ct.lockForTransition(tx); err != nil {
			return err
		}
		status, err := ct.currentStatus(tx)
		if err != nil {
			return err
		}
		switch status {
		case StatusApoiador:
			return nil
		case StatusLead:
			return ct.setLifecycleTag(tx, SlugApoiador)
		default:
			return ErrInvalidTransition
		}
	})
}

// Demote moves a contact from apoiador back to lead.
func (ct *Contact) Demote(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ct.lockForTransition(tx); err != nil {
			return err
		}
		status, err := ct.currentStatus(tx)
		if err != nil {
			return err
		}
		switch status {
		case StatusLead:
			return nil
		case StatusApoiador:
			return ct.setLifecycleTag(tx, SlugLead)
		default:
			return ErrInvalidTransition
		}
	})
}

// AddToBlacklist blacklists a contact from any non-blacklist status. The
// prior status is recorded so RemoveFromBlacklist can restore it.
func (ct *Contact) AddToBlacklist(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ct.lockForTransition(tx); err != nil {
			return err
		}
		status, err := ct.currentStatus(tx)
		if err != nil {
			return err
		}
		if status == StatusBlacklist {
			return nil
		}
		if err := tx.Model(&Contact{}).Where("id = ?", ct.ID).
			Update("pre_blacklist_status", string(status)).Error; err != nil {
			return err
		}
		ct.PreBlacklistStatus = string(status)
		return ct.setLifecycleTag(tx, SlugBlacklist)
	})
}

// RemoveFromBlacklist returns a blacklisted contact to the status it held
// before blacklisting, defaulting to lead. A contact that is not blacklisted
// is left untouched.
func (ct *Contact) RemoveFromBlacklist(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ct.lockForTransition(tx); err != nil {
			return err
		}
		status, err := ct.currentStatus(tx)
		if err != nil {
			return err
		}
		if status != StatusBlacklist {
			return nil
		}

		var stored Contact
		if err := tx.Select("pre_blacklist_status").First(&stored, ct.ID).Error; err != nil {
			return err
		}
		prior := ContactStatus(stored.PreBlacklistStatus)
		if prior != StatusApoiador {
			prior = StatusLead
		}

		if err := tx.Model(&Contact{}).Where("id = ?", ct.ID).
			Update("pre_blacklist_status", "").Error; err != nil {
			return err
		}
		ct.PreBlacklistStatus = ""
		return ct.setLifecycleTag(tx, string(prior))
	})
}

// SetAsLead attaches the lead tag to a contact that has no lifecycle status
// yet. Used when contacts enter the system (manual entry, API, import).
func (ct *Contact) SetAsLead(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ct.lockForTransition(tx); err != nil {
			return err
		}
		status, err := ct.currentStatus(tx)
		if err != nil {
			return err
		}
		if status != StatusNone {
			return nil
		}
		return ct.setLifecycleTag(tx, SlugLead)
	})
}
