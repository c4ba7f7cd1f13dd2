package utils

import (
	"fmt"
	"regexp"
	"strconv"
)

var nonDigitRe = regexp.MustCompile(`\D`)

// CleanPhoneNumber normalizes a Brazilian phone number to digits with the
// country code. Local numbers (10 or 11 digits, area code plus subscriber)
// get the 55 prefix; anything else is returned as bare digits so callers
// can decide what to do with partial input.
func CleanPhoneNumber(phone string) string {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if len(digits) == 10 || len(digits) == 11 {
		return "55" + digits
	}
	return digits
}

// IsCompletePhone reports whether the canonical form is a full Brazilian
// number: country code 55 followed by area code and an 8 or 9 digit line.
func IsCompletePhone(phone string) bool {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if len(digits) != 12 && len(digits) != 13 {
		return false
	}
	return digits[:2] == "55"
}

// FormatPhoneDisplay renders a canonical number as +55 (11) 99999-9999.
// Numbers that are not complete are returned unchanged.
func FormatPhoneDisplay(phone string) string {
	if !IsCompletePhone(phone) {
		return phone
	}
	digits := nonDigitRe.ReplaceAllString(phone, "")
	area := digits[2:4]
	line := digits[4:]
	split := len(line) - 4
	return fmt.Sprintf("+55 (%s) %s-%s", area, line[:split], line[split:])
}

// CleanDocument strips formatting from CPF/CNPJ style documents.
func CleanDocument(doc string) string {
	return nonDigitRe.ReplaceAllString(doc, "")
}

// ValidateCPF checks the two mod-11 verification digits of a CPF.
func ValidateCPF(cpf string) bool {
	digits := CleanDocument(cpf)
	if len(digits) != 11 {
		return false
	}

	// CPFs with all digits equal pass the checksum but are invalid
	same := true
	for i := 1; i < 11; i++ {
		if digits[i] != digits[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}

	nums := make([]int, 11)
	for i, r := range digits {
		n, err := strconv.Atoi(string(r))
		if err != nil {
			return false
		}
		nums[i] = n
	}

	sum := 0
	for i := 0; i < 9; i++ {
		sum += nums[i] * (10 - i)
	}
	check := (sum * 10) % 11
	if check == 10 {
		check = 0
	}
	if check != nums[9] {
		return false
	}

	sum = 0
	for i := 0; i < 10; i++ {
		sum += nums[i] * (11 - i)
	}
	check = (sum * 10) % 11
	if check == 10 {
		check = 0
	}
	return check == nums[10]
}
