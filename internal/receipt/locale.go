// Package receipt turns photographed payment receipts into payment fields:
// image normalization for OCR and text heuristics over recognized text and
// file names.
package receipt

import (
	"strings"

	"github.com/garyjia/school-billing/internal/domain/entity"
)

// MethodRule maps any of its keywords, found in a lowercased file name, to a
// payment method.
type MethodRule struct {
	Keywords []string             `mapstructure:"keywords"`
	Method   entity.PaymentMethod `mapstructure:"method"`
}

// Locale carries the currency and bank-name assumptions of the heuristics.
// Rules are evaluated in order; the first match wins.
type Locale struct {
	CurrencyPrefixes []string
	MethodRules      []MethodRule
	DefaultMethod    entity.PaymentMethod
}

// DefaultLocale returns Philippine peso settings. "gcash" is checked after
// the Maya and bank keywords but before "cash", which it contains.
func DefaultLocale() Locale {
	return Locale{
		CurrencyPrefixes: []string{"PHP", "₱"},
		MethodRules: []MethodRule{
			{Keywords: []string{"maya"}, Method: entity.PaymentMethodMaya},
			{Keywords: []string{"bdo", "bpi", "union"}, Method: entity.PaymentMethodBankTransfer},
			{Keywords: []string{"gcash"}, Method: entity.PaymentMethodGCash},
			{Keywords: []string{"cash"}, Method: entity.PaymentMethodCash},
		},
		DefaultMethod: entity.PaymentMethodGCash,
	}
}

func (l Locale) methodFor(name string) entity.PaymentMethod {
	lower := strings.ToLower(name)
	for _, rule := range l.MethodRules {
		for _, keyword := range rule.Keywords {
			if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
				return rule.Method
			}
		}
	}
	if l.DefaultMethod != "" {
		return l.DefaultMethod
	}
	return entity.PaymentMethodGCash
}
