package models_test

import (
	"errors"
	"sync"
	"testing"

	"voxpop/models"

	"gorm.io/gorm"
)

func TestDeriveStatusPrecedence(t *testing.T) {
	lead := models.Tag{Slug: models.SlugLead, IsSystem: true}
	apoiador := models.Tag{Slug: models.SlugApoiador, IsSystem: true}
	blacklist := models.Tag{Slug: models.SlugBlacklist, IsSystem: true}
	user := models.Tag{Slug: "voluntario", IsSystem: false}

	cases := []struct {
		name string
		tags []models.Tag
		want models.ContactStatus
	}{
		{"no tags", nil, models.StatusNone},
		{"only user tags", []models.Tag{user}, models.StatusNone},
		{"lead", []models.Tag{lead, user}, models.StatusLead},
		{"apoiador beats lead", []models.Tag{lead, apoiador}, models.StatusApoiador},
		{"blacklist beats all", []models.Tag{lead, apoiador, blacklist}, models.StatusBlacklist},
		{"user tag named like lifecycle", []models.Tag{{Slug: models.SlugBlacklist, IsSystem: false}}, models.StatusNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := models.DeriveStatus(tc.tags); got != tc.want {
				t.Fatalf("DeriveStatus = %q, want %q", got, tc.want)
			}
		})
	}
}

func lifecycleTagCount(t *testing.T, db *gorm.DB, contactID uint) int64 {
	t.Helper()
	var count int64
	err := db.Model(&models.ContactTag{}).
		Joins("JOIN tags ON tags.id = contact_tags.tag_id").
		Where("contact_tags.contact_id = ? AND tags.is_system = ?", contactID, true).
		Count(&count).Error
	if err != nil {
		t.Fatalf("failed to count lifecycle tags: %v", err)
	}
	return count
}

func TestLifecycleTagExclusivity(t *testing.T) {
	db := newTestDB(t)
	contact := createContact(t, db, models.Contact{Name: "Ana", Phone: "5511999990001"})

	steps := []func(*gorm.DB) error{
		contact.SetAsLead,
		contact.Promote,
		contact.AddToBlacklist,
		contact.RemoveFromBlacklist,
		contact.Demote,
	}
	for i, step := range steps {
		if err := step(db); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		if count := lifecycleTagCount(t, db, contact.ID); count != 1 {
			t.Fatalf("after step %d: %d lifecycle tags, want exactly 1", i, count)
		}
	}
}

func TestConcurrentTransitionsKeepOneLifecycleTag(t *testing.T) {
	db := newTestDB(t)
	contact := createContact(t, db, models.Contact{Name: "Hugo", Phone: "5511999990007"})
	if err := contact.SetAsLead(db); err != nil {
		t.Fatalf("SetAsLead failed: %v", err)
	}

	// Transitions lock the contact row, so racing writers serialize and
	// each one reads the status the previous writer committed.
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := models.Contact{Model: gorm.Model{ID: contact.ID}}
			var err error
			switch i % 4 {
			case 0:
				err = c.Promote(db)
			case 1:
				err = c.AddToBlacklist(db)
			case 2:
				err = c.RemoveFromBlacklist(db)
			default:
				err = c.Demote(db)
			}
			if err != nil && !errors.Is(err, models.ErrInvalidTransition) {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent transition failed: %v", err)
	}

	if count := lifecycleTagCount(t, db, contact.ID); count != 1 {
		t.Fatalf("%d lifecycle tags after concurrent transitions, want exactly 1", count)
	}
	if got := mustStatus(t, db, &contact); got == models.StatusNone {
		t.Fatalf("contact lost its lifecycle status")
	}
}

func TestPromoteFromLead(t *testing.T) {
	db := newTestDB(t)
	contact := createContact(t, db, models.Contact{Name: "Bruno", Phone: "5511999990002"})
	if err := contact.SetAsLead(db); err != nil {
		t.Fatalf("SetAsLead failed: %v", err)
	}

	if err := contact.Promote(db); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if got := mustStatus(t, db, &contact); got != models.StatusApoiador {
		t.Fatalf("status = %q, want apoiador", got)
	}

	// Promoting an apoiador again is a no-op success
	if err := contact.Promote(db); err != nil {
		t.Fatalf("repeated Promote failed: %v", err)
	}
	if got := mustStatus(t, db, &contact); got != models.StatusApoiador {
		t.Fatalf("status after repeat = %q, want apoiador", got)
	}
}

func TestPromoteWithoutStatusFails(t *testing.T) {
	db := newTestDB(t)
	contact := createContact(t, db, models.Contact{Name: "Carla", Phone: "5511999990003"})

	if err := contact.Promote(db); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("Promote on contact without status = %v, want ErrInvalidTransition", err)
	}
}

func TestDemote(t *testing.T) {
	db := newTestDB(t)
	contact := createContact(t, db, models.Contact{Name: "Davi", Phone: "5511999990004"})
	if err := contact.SetAsLead(db); err != nil {
		t.Fatalf("SetAsLead failed: %v", err)
	}
	if err := contact.Promote(db); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	if err := contact.Demote(db); err != nil {
		t.Fatalf("Demote failed: %v", err)
	}
	if got := mustStatus(t, db, &contact); got != models.StatusLead {
		t.Fatalf("status = %q, want lead", got)
	}

	// Demoting a lead is a no-op success
	if err := contact.Demote(db); err != nil {
		t.Fatalf("repeated Demote failed: %v", err)
	}
}

func TestDemoteBlacklistedFails(t *testing.T) {
	db := newTestDB(t)
	contact := createContact(t, db, models.Contact{Name: "Edu", Phone: "5511999990005"})
	if err := contact.SetAsLead(db); err != nil {
		t.Fatalf("SetAsLead failed: %v", err)
	}
	if err := contact.AddToBlacklist(db); err != nil {
		t.Fatalf("AddToBlacklist failed: %v", err)
	}

	if err := contact.Demote(db); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("Demote on blacklisted = %v, want ErrInvalidTransition", err)
	}
}

func TestBlacklistRestoresPriorStatus(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(*gorm.DB, *models.Contact) error
		want    models.ContactStatus
	}{
		{
			name:    "lead returns to lead",
			prepare: func(db *gorm.DB, c *models.Contact) error { return c.SetAsLead(db) },
			want:    models.StatusLead,
		},
		{
			name: "apoiador returns to apoiador",
			prepare: func(db *gorm.DB, c *models.Contact) error {
				if err := c.SetAsLead(db); err != nil {
					return err
				}
				return c.Promote(db)
			},
			want: models.StatusApoiador,
		},
		{
			name:    "no prior status defaults to lead",
			prepare: func(db *gorm.DB, c *models.Contact) error { return nil },
			want:    models.StatusLead,
		},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			contact := createContact(t, db, models.Contact{
				Name:  "Fulana",
				Phone: "551199999010" + string(rune('0'+i)),
			})
			if err := tc.prepare(db, &contact); err != nil {
				t.Fatalf("prepare failed: %v", err)
			}

			if err := contact.AddToBlacklist(db); err != nil {
				t.Fatalf("AddToBlacklist failed: %v", err)
			}
			if got := mustStatus(t, db, &contact); got != models.StatusBlacklist {
				t.Fatalf("status after blacklist = %q, want blacklist", got)
			}

			if err := contact.RemoveFromBlacklist(db); err != nil {
				t.Fatalf("RemoveFromBlacklist failed: %v", err)
			}
			if got := mustStatus(t, db, &contact); got != tc.want {
				t.Fatalf("status after unblacklist = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnblacklistNonBlacklistedIsNoop(t *testing.T) {
	db := newTestDB(t)
	contact := createContact(t, db, models.Contact{Name: "Gil", Phone: "5511999990006"})
	if err := contact.SetAsLead(db); err != nil {
		t.Fatalf("SetAsLead failed: %v", err)
	}

	if err := contact.RemoveFromBlacklist(db); err != nil {
		t.Fatalf("RemoveFromBlacklist failed: %v", err)
	}
	if got := mustStatus(t, db, &contact); got != models.StatusLead {
		t.Fatalf("status = %q, want lead", got)
	}
}
