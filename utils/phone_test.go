package utils_test

import (
	"testing"

	"voxpop/utils"
)

func TestCleanPhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(11) 99999-0001", "5511999990001"},
		{"11 3333-0001", "551133330001"},
		{"+55 11 99999-0001", "5511999990001"},
		{"5511999990001", "5511999990001"},
		{"999990001", "999990001"}, // too short, kept as digits
		{"", ""},
	}
	for _, tc := range cases {
		if got := utils.CleanPhoneNumber(tc.in); got != tc.want {
			t.Fatalf("CleanPhoneNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsCompletePhone(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"5511999990001", true},
		{"551133330001", true},
		{"11999990001", false},  // missing country code
		{"999990001", false},    // partial
		{"1511999990001", false}, // wrong country code
		{"", false},
	}
	for _, tc := range cases {
		if got := utils.IsCompletePhone(tc.in); got != tc.want {
			t.Fatalf("IsCompletePhone(%q) = %t, want %t", tc.in, got, tc.want)
		}
	}
}

func TestFormatPhoneDisplay(t *testing.T) {
	if got := utils.FormatPhoneDisplay("5511999990001"); got != "+55 (11) 99999-0001" {
		t.Fatalf("FormatPhoneDisplay = %q", got)
	}
	if got := utils.FormatPhoneDisplay("551133330001"); got != "+55 (11) 3333-0001" {
		t.Fatalf("FormatPhoneDisplay = %q", got)
	}
	// Incomplete numbers pass through untouched
	if got := utils.FormatPhoneDisplay("99999"); got != "99999" {
		t.Fatalf("FormatPhoneDisplay = %q", got)
	}
}

func TestValidateCPF(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"529.982.247-25", true},
		{"52998224725", true},
		{"529.982.247-26", false}, // bad check digit
		{"111.111.111-11", false}, // repeated digits
		{"1234567890", false},     // wrong length
		{"", false},
	}
	for _, tc := range cases {
		if got := utils.ValidateCPF(tc.in); got != tc.want {
			t.Fatalf("ValidateCPF(%q) = %t, want %t", tc.in, got, tc.want)
		}
	}
}

func TestCleanDocument(t *testing.T) {
	if got := utils.CleanDocument("529.982.247-25"); got != "52998224725" {
		t.Fatalf("CleanDocument = %q", got)
	}
	if got := utils.CleanDocument("01310-100"); got != "01310100" {
		t.Fatalf("CleanDocument = %q", got)
	}
}
