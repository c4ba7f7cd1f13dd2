package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Filter keys recognized by the evaluator. Any other key in a stored spec is
// preserved as-is and ignored at evaluation time.
const (
	FilterContactStatus    = "contact_status"
	FilterCity             = "city"
	FilterState            = "state"
	FilterNeighborhood     = "neighborhood"
	FilterGender           = "gender"
	FilterTags             = "tags" // any of
	FilterTagsAll          = "tags_all"
	FilterAgeMin           = "age_min"
	FilterAgeMax           = "age_max"
	FilterElectoralZone    = "electoral_zone"
	FilterElectoralSection = "electoral_section"
	FilterSource           = "source"
)

// FilterSpec is a declarative filter over the contact collection, stored as
// an open-ended JSON object. A key that is present but carries an empty
// string, zero or empty list marks an active-but-inert filter row: it stays
// in the spec but compiles to no constraint.
type FilterSpec map[string]json.RawMessage

// ParseFilterSpec decodes a stored filter object. A nil or empty payload is
// a valid spec matching everything.
func ParseFilterSpec(raw []byte) (FilterSpec, error) {
	spec := FilterSpec{}
	if len(raw) == 0 {
		return spec, nil
	}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// Str returns the string value for a key, tolerating JSON numbers. Empty
// string when absent or empty.
func (f FilterSpec) Str(key string) string {
	raw, ok := f[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Int returns the numeric value for a key, tolerating quoted numbers. Zero
// when absent or not a number.
func (f FilterSpec) Int(key string) int {
	raw, ok := f[key]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var quoted int
		if err := json.Unmarshal([]byte(s), &quoted); err == nil {
			return quoted
		}
	}
	return 0
}

// IDs returns the id list for a key. Nil when absent or empty.
func (f FilterSpec) IDs(key string) []uint {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

// ActiveKeys lists the recognized keys present in the spec, including ones
// with empty values (presence, not truthiness, marks a filter row active).
func (f FilterSpec) ActiveKeys() []string {
	known := []string{
		FilterContactStatus, FilterCity, FilterState, FilterNeighborhood,
		FilterGender, FilterTags, FilterTagsAll, FilterAgeMin, FilterAgeMax,
		FilterElectoralZone, FilterElectoralSection, FilterSource,
	}
	var active []string
	for _, key := range known {
		if _, ok := f[key]; ok {
			active = append(active, key)
		}
	}
	return active
}

// Apply compiles the spec into a conjunction of WHERE clauses on a contacts
// query. Evaluation is a pure function of the contact collection and the
// given time (age arithmetic only). Text matching: city and neighborhood use
// case-insensitive prefix match; state, electoral zone and section use
// case-insensitive exact match.
func (f FilterSpec) Apply(db *gorm.DB, now time.Time) *gorm.DB {
	if status := f.Str(FilterContactStatus); status != "" {
		switch ContactStatus(status) {
		case StatusLead, StatusApoiador, StatusBlacklist:
			db = db.Where(
				"contacts.id IN (SELECT ct.contact_id FROM contact_tags ct"+
					" JOIN tags t ON t.id = ct.tag_id"+
					" WHERE t.slug = ? AND t.is_system = ? AND t.deleted_at IS NULL)",
				status, true)
		}
	}

	if city := f.Str(FilterCity); city != "" {
		db = db.Where("LOWER(contacts.city) LIKE ?", strings.ToLower(city)+"%")
	}
	if state := f.Str(FilterState); state != "" {
		db = db.Where("LOWER(contacts.state) = ?", strings.ToLower(state))
	}
	if neighborhood := f.Str(FilterNeighborhood); neighborhood != "" {
		db = db.Where("LOWER(contacts.neighborhood) LIKE ?", strings.ToLower(neighborhood)+"%")
	}
	if gender := f.Str(FilterGender); gender != "" {
		db = db.Where("contacts.gender = ?", strings.ToUpper(gender))
	}

	if ids := f.IDs(FilterTags); len(ids) > 0 {
		db = db.Where(
			"contacts.id IN (SELECT contact_id FROM contact_tags WHERE tag_id IN ?)", ids)
	}
	for _, id := range f.IDs(FilterTagsAll) {
		db = db.Where(
			"contacts.id IN (SELECT contact_id FROM contact_tags WHERE tag_id = ?)", id)
	}

	// Contacts without a birth date never match an age-bounded filter.
	if ageMin := f.Int(FilterAgeMin); ageMin > 0 {
		cutoff := now.AddDate(-ageMin, 0, 0)
		db = db.Where("contacts.birth_date IS NOT NULL AND contacts.birth_date <= ?", cutoff)
	}
	if ageMax := f.Int(FilterAgeMax); ageMax > 0 {
		cutoff := now.AddDate(-(ageMax + 1), 0, 0).AddDate(0, 0, 1)
		db = db.Where("contacts.birth_date IS NOT NULL AND contacts.birth_date >= ?", cutoff)
	}

	if zone := f.Str(FilterElectoralZone); zone != "" {
		db = db.Where("LOWER(contacts.electoral_zone) = ?", strings.ToLower(zone))
	}
	if section := f.Str(FilterElectoralSection); section != "" {
		db = db.Where("LOWER(contacts.electoral_section) = ?", strings.ToLower(section))
	}
	if source := f.Str(FilterSource); source != "" {
		db = db.Where("contacts.source = ?", source)
	}

	return db
}

// FilterSpecFromQuery builds a spec from URL query parameters, for the
// contact listing endpoint. Only recognized keys are picked up.
func FilterSpecFromQuery(get func(string) string) FilterSpec {
	spec := FilterSpec{}
	for _, key := range []string{
		FilterContactStatus, FilterCity, FilterState, FilterNeighborhood,
		FilterGender, FilterAgeMin, FilterAgeMax,
		FilterElectoralZone, FilterElectoralSection, FilterSource,
	} {
		if value := get(key); value != "" {
			encoded, _ := json.Marshal(value)
			spec[key] = encoded
		}
	}
	for _, key := range []string{FilterTags, FilterTagsAll} {
		if value := get(key); value != "" {
			var ids []uint
			for _, part := range strings.Split(value, ",") {
				var id uint
				if err := json.Unmarshal([]byte(strings.TrimSpace(part)), &id); err == nil {
					ids = append(ids, id)
				}
			}
			if encoded, err := json.Marshal(ids); err == nil {
				spec[key] = encoded
			}
		}
	}
	return spec
}
