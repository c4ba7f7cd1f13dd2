package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ImportFields maps each importable contact field to the spreadsheet header
// aliases we recognize for it, in Portuguese and English.
var ImportFields = map[string][]string{
	"name":              {"nome", "nome completo", "name", "full name", "contato"},
	"phone":             {"telefone", "celular", "whatsapp", "fone", "phone", "mobile"},
	"email":             {"email", "e-mail", "correio eletronico"},
	"cpf":               {"cpf", "documento", "document"},
	"birth_date":        {"data de nascimento", "nascimento", "aniversario", "birth date", "birthdate", "dob"},
	"gender":            {"genero", "sexo", "gender", "sex"},
	"city":              {"cidade", "municipio", "city"},
	"neighborhood":      {"bairro", "neighborhood", "district"},
	"state":             {"estado", "uf", "state"},
	"zip_code":          {"cep", "codigo postal", "zip", "zip code", "postal code"},
	"electoral_zone":    {"zona eleitoral", "zona", "electoral zone"},
	"electoral_section": {"secao eleitoral", "secao", "electoral section"},
}

var headerNormalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeHeader lowercases a spreadsheet header and strips accents and
// surrounding punctuation so "Seção Eleitoral" matches "secao eleitoral".
func NormalizeHeader(header string) string {
	stripped, _, err := transform.String(headerNormalizer, header)
	if err != nil {
		stripped = header
	}
	lowered := strings.ToLower(stripped)
	lowered = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' {
			return r
		}
		return ' '
	}, lowered)
	return strings.Join(strings.Fields(lowered), " ")
}

// IsImportField reports whether the given name is a mappable contact field.
func IsImportField(field string) bool {
	_, ok := ImportFields[field]
	return ok
}

// SuggestMapping guesses a header-to-field mapping for a CSV header row.
// Exact alias matches win; otherwise a substring match in either direction
// is accepted. Each field is assigned at most once, first header wins.
func SuggestMapping(headers []string) map[string]string {
	mapping := make(map[string]string)
	claimed := make(map[string]bool)

	assign := func(header, field string) {
		if _, done := mapping[header]; done || claimed[field] {
			return
		}
		mapping[header] = field
		claimed[field] = true
	}

	// Exact matches first so "zona eleitoral" beats a loose "zona" hit
	for _, header := range headers {
		normalized := NormalizeHeader(header)
		for field, aliases := range ImportFields {
			for _, alias := range aliases {
				if normalized == alias {
					assign(header, field)
				}
			}
		}
	}

	for _, header := range headers {
		if _, done := mapping[header]; done {
			continue
		}
		normalized := NormalizeHeader(header)
		if normalized == "" {
			continue
		}
		for field, aliases := range ImportFields {
			for _, alias := range aliases {
				if strings.Contains(normalized, alias) || strings.Contains(alias, normalized) {
					assign(header, field)
				}
			}
		}
	}

	return mapping
}
