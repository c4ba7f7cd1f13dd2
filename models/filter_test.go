package models_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"voxpop/models"

	"gorm.io/gorm"
)

var filterNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

type audienceFixture struct {
	maria, joao, pedro     models.Contact
	voluntarioID, doadorID uint
}

// seedAudience creates three contacts covering the filterable dimensions:
//
//	Maria: apoiador, São Paulo/SP, F, born 1990, opt-in, tag voluntario
//	João:  lead, Santos/SP, M, born 2005, opt-in, tags voluntario+doador
//	Pedro: no status, Rio de Janeiro/RJ, M, no birth date, no opt-in, tag doador
func seedAudience(t *testing.T, db *gorm.DB) audienceFixture {
	t.Helper()

	voluntario := models.Tag{Name: "Voluntario"}
	doador := models.Tag{Name: "Doador"}
	for _, tag := range []*models.Tag{&voluntario, &doador} {
		if err := db.Create(tag).Error; err != nil {
			t.Fatalf("create tag failed: %v", err)
		}
	}

	birth1990 := time.Date(1990, 5, 10, 0, 0, 0, 0, time.UTC)
	birth2005 := time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)

	maria := createContact(t, db, models.Contact{
		Name: "Maria", Phone: "5511977770001",
		City: "São Paulo", Neighborhood: "Centro", State: "SP",
		Gender: "F", BirthDate: &birth1990,
		WhatsappOptIn: true, Source: models.SourceImport,
		ElectoralZone: "004", ElectoralSection: "0123",
	})
	joao := createContact(t, db, models.Contact{
		Name: "João", Phone: "5513977770002",
		City: "Santos", State: "SP",
		Gender: "M", BirthDate: &birth2005,
		WhatsappOptIn: true, Source: models.SourceForm,
	})
	pedro := createContact(t, db, models.Contact{
		Name: "Pedro", Phone: "5521977770003",
		City: "Rio de Janeiro", State: "RJ",
		Gender: "M", Source: models.SourceManual,
	})

	if err := maria.SetAsLead(db); err != nil {
		t.Fatalf("SetAsLead failed: %v", err)
	}
	if err := maria.Promote(db); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if err := joao.SetAsLead(db); err != nil {
		t.Fatalf("SetAsLead failed: %v", err)
	}

	links := []models.ContactTag{
		{ContactID: maria.ID, TagID: voluntario.ID},
		{ContactID: joao.ID, TagID: voluntario.ID},
		{ContactID: joao.ID, TagID: doador.ID},
		{ContactID: pedro.ID, TagID: doador.ID},
	}
	for _, link := range links {
		if err := db.Create(&link).Error; err != nil {
			t.Fatalf("link failed: %v", err)
		}
	}

	return audienceFixture{
		maria: maria, joao: joao, pedro: pedro,
		voluntarioID: voluntario.ID, doadorID: doador.ID,
	}
}

func spec(t *testing.T, raw string) models.FilterSpec {
	t.Helper()
	parsed, err := models.ParseFilterSpec([]byte(raw))
	if err != nil {
		t.Fatalf("bad spec %s: %v", raw, err)
	}
	return parsed
}

func matchNames(t *testing.T, db *gorm.DB, s models.FilterSpec) []string {
	t.Helper()
	var contacts []models.Contact
	query := s.Apply(db.Model(&models.Contact{}), filterNow)
	if err := query.Order("contacts.name").Find(&contacts).Error; err != nil {
		t.Fatalf("filter query failed: %v", err)
	}
	names := make([]string, 0, len(contacts))
	for _, c := range contacts {
		names = append(names, c.Name)
	}
	return names
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("matched %v, want %v", got, want)
	}
}

func TestFilterConjunction(t *testing.T) {
	db := newTestDB(t)
	fx := seedAudience(t, db)

	s := spec(t, fmt.Sprintf(`{"contact_status":"apoiador","state":"sp","tags":[%d]}`, fx.voluntarioID))
	assertNames(t, matchNames(t, db, s), "Maria")
}

func TestStatusFilter(t *testing.T) {
	db := newTestDB(t)
	seedAudience(t, db)

	assertNames(t, matchNames(t, db, spec(t, `{"contact_status":"lead"}`)), "João")
	assertNames(t, matchNames(t, db, spec(t, `{"contact_status":"apoiador"}`)), "Maria")
	assertNames(t, matchNames(t, db, spec(t, `{"contact_status":"blacklist"}`)))
}

func TestCityPrefixMatch(t *testing.T) {
	db := newTestDB(t)
	seedAudience(t, db)

	assertNames(t, matchNames(t, db, spec(t, `{"city":"são"}`)), "Maria")
	assertNames(t, matchNames(t, db, spec(t, `{"city":"san"}`)), "João")
	assertNames(t, matchNames(t, db, spec(t, `{"neighborhood":"cen"}`)), "Maria")
	// State is exact, not prefix
	assertNames(t, matchNames(t, db, spec(t, `{"state":"S"}`)))
}

func TestTagsAnyVersusAll(t *testing.T) {
	db := newTestDB(t)
	fx := seedAudience(t, db)

	anySpec := spec(t, fmt.Sprintf(`{"tags":[%d,%d]}`, fx.voluntarioID, fx.doadorID))
	assertNames(t, matchNames(t, db, anySpec), "João", "Maria", "Pedro")

	allSpec := spec(t, fmt.Sprintf(`{"tags_all":[%d,%d]}`, fx.voluntarioID, fx.doadorID))
	assertNames(t, matchNames(t, db, allSpec), "João")
}

func TestAgeFilters(t *testing.T) {
	db := newTestDB(t)
	seedAudience(t, db)

	// Pedro has no birth date and never matches an age-bounded filter
	assertNames(t, matchNames(t, db, spec(t, `{"age_min":30}`)), "Maria")
	assertNames(t, matchNames(t, db, spec(t, `{"age_max":25}`)), "João")
	assertNames(t, matchNames(t, db, spec(t, `{"age_min":18,"age_max":40}`)), "João", "Maria")

	// Quoted numbers are tolerated
	assertNames(t, matchNames(t, db, spec(t, `{"age_min":"30"}`)), "Maria")
}

func TestElectoralAndSourceFilters(t *testing.T) {
	db := newTestDB(t)
	seedAudience(t, db)

	assertNames(t, matchNames(t, db, spec(t, `{"electoral_zone":"004"}`)), "Maria")
	assertNames(t, matchNames(t, db, spec(t, `{"electoral_section":"0123"}`)), "Maria")
	assertNames(t, matchNames(t, db, spec(t, `{"source":"form"}`)), "João")
	assertNames(t, matchNames(t, db, spec(t, `{"gender":"m"}`)), "João", "Pedro")
}

func TestEmptyFilterValuesAreInert(t *testing.T) {
	db := newTestDB(t)
	seedAudience(t, db)

	s := spec(t, `{"city":"","tags":[],"age_min":0,"contact_status":""}`)
	assertNames(t, matchNames(t, db, s), "João", "Maria", "Pedro")

	// Keys are still reported as active for the builder UI
	keys := s.ActiveKeys()
	if len(keys) != 4 {
		t.Fatalf("ActiveKeys = %v, want 4 entries", keys)
	}
}

func TestUnknownKeysIgnored(t *testing.T) {
	db := newTestDB(t)
	seedAudience(t, db)

	s := spec(t, `{"favorite_color":"blue"}`)
	assertNames(t, matchNames(t, db, s), "João", "Maria", "Pedro")
	if keys := s.ActiveKeys(); len(keys) != 0 {
		t.Fatalf("ActiveKeys = %v, want none", keys)
	}
}

func TestFilterSpecFromQuery(t *testing.T) {
	values := map[string]string{
		"contact_status": "lead",
		"city":           "Santos",
		"tags":           "1, 2",
		"age_min":        "18",
		"ignored":        "x",
	}
	s := models.FilterSpecFromQuery(func(key string) string { return values[key] })

	if got := s.Str(models.FilterContactStatus); got != "lead" {
		t.Fatalf("contact_status = %q", got)
	}
	if got := s.IDs(models.FilterTags); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("tags = %v", got)
	}
	if got := s.Int(models.FilterAgeMin); got != 18 {
		t.Fatalf("age_min = %d", got)
	}
	if _, ok := s["ignored"]; ok {
		t.Fatalf("unexpected key picked up from query")
	}

	if _, err := json.Marshal(s); err != nil {
		t.Fatalf("spec not serializable: %v", err)
	}
}
