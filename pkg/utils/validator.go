package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ISODateLayout is the wire format for payment and proof dates
const ISODateLayout = "2006-01-02"

var (
	controlChars  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	unsafeFileRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ParseAmount parses a human-entered amount such as "1,250.00".
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount is not numeric: %s", s)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative: %s", s)
	}
	return amount, nil
}

// ValidateISODate validates a YYYY-MM-DD calendar date
func ValidateISODate(s string) error {
	if _, err := time.Parse(ISODateLayout, s); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// SanitizeFileName reduces a client-supplied file name to a safe base name
func SanitizeFileName(name string) string {
	base := filepath.Base(SanitizeString(name))
	base = unsafeFileRun.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "upload"
	}
	return base
}
