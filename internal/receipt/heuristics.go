package receipt

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/garyjia/school-billing/pkg/utils"
)

// Fields are the payment values read from a receipt. Empty means not found.
type Fields struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Method    string `json:"method,omitempty"`
	Date      string `json:"date"`
}

var (
	labeledReference  = regexp.MustCompile(`(?i)\breference\b(?:\s*(?:number|no)\b\.?)?\s*[:#]?\s*([A-Za-z0-9-]*)`)
	groupedAmount     = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?$`)
	referenceRun      = regexp.MustCompile(`[A-Z0-9-]{10,}`)
	isoDate           = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	monthDayYear      = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})`)
	filenameNumber    = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	filenameDate      = regexp.MustCompile(`(\d{4})-?(\d{2})-?(\d{2})`)
	monthAbbreviation = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// Parser extracts payment fields using a Locale. It is safe for concurrent use.
type Parser struct {
	locale Locale
	amount *regexp.Regexp
}

// NewParser compiles the amount pattern for the locale's currency prefixes.
func NewParser(locale Locale) *Parser {
	prefixes := make([]string, 0, len(locale.CurrencyPrefixes))
	for _, prefix := range locale.CurrencyPrefixes {
		if prefix != "" {
			prefixes = append(prefixes, regexp.QuoteMeta(prefix))
		}
	}

	// group 1 is the currency prefix, group 2 the figure
	prefix := `()`
	if len(prefixes) > 0 {
		prefix = `(?:((?i:` + strings.Join(prefixes, "|") + `))\s?)?`
	}
	pattern := prefix + `(\d+(?:,\d{3})*(?:\.\d+)?)`

	return &Parser{
		locale: locale,
		amount: regexp.MustCompile(pattern),
	}
}

// ParseText extracts reference, amount and date from recognized text.
// Method is never present in receipt text and is left empty.
func (p *Parser) ParseText(text string) Fields {
	return Fields{
		Reference: p.ExtractReference(text),
		Amount:    p.ExtractAmount(text),
		Date:      p.ExtractDate(text),
	}
}

// ExtractReference prefers the token right after a reference label when it
// has four or more characters, and falls back to the longest run of ten or
// more uppercase alphanumerics or hyphens.
func (p *Parser) ExtractReference(text string) string {
	for _, m := range labeledReference.FindAllStringSubmatch(text, -1) {
		if len(m[1]) >= 4 {
			return m[1]
		}
	}

	longest := ""
	for _, run := range referenceRun.FindAllString(text, -1) {
		if len(run) > len(longest) {
			longest = run
		}
	}
	return longest
}

// ExtractAmount returns the largest currency figure in text, in canonical
// decimal form ("1,250.00" becomes "1250"). Figures glued to letters or
// digits are parts of other tokens and dates are masked out first. When any
// figure carries a currency prefix, decimals or thousands groups, bare
// integers are not considered.
func (p *Parser) ExtractAmount(text string) string {
	text = maskDates(text)

	var money, bare []decimal.Decimal
	for _, idx := range p.amount.FindAllStringSubmatchIndex(text, -1) {
		start, end := idx[0], idx[1]
		hasPrefix := idx[2] >= 0 && idx[3] > idx[2]
		figure := text[idx[4]:idx[5]]

		// a prefix such as PHP may be glued to the label before it
		if (!hasPrefix && wordBefore(text, start)) || wordAt(text, end) {
			continue
		}
		if !groupedAmount.MatchString(figure) {
			continue
		}
		value, err := decimal.NewFromString(strings.ReplaceAll(figure, ",", ""))
		if err != nil {
			continue
		}
		if hasPrefix || strings.ContainsAny(figure, ".,") {
			money = append(money, value)
		} else {
			bare = append(bare, value)
		}
	}

	candidates := money
	if len(candidates) == 0 {
		candidates = bare
	}
	if len(candidates) == 0 {
		return ""
	}
	best := candidates[0]
	for _, value := range candidates[1:] {
		if value.GreaterThan(best) {
			best = value
		}
	}
	return best.String()
}

// wordBefore reports whether the rune ending at i is a letter or digit
func wordBefore(text string, i int) bool {
	if i <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordAt reports whether the rune starting at i is a letter or digit
func wordAt(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// maskDates blanks calendar dates so their numbers are not read as amounts
func maskDates(text string) string {
	blank := func(s string) string { return strings.Repeat(" ", len(s)) }
	text = isoDate.ReplaceAllStringFunc(text, blank)
	return monthDayYear.ReplaceAllStringFunc(text, blank)
}

// ExtractDate finds a YYYY-MM-DD (or slashed) date, then a "May 16, 2024"
// style date, and normalizes it to YYYY-MM-DD.
func (p *Parser) ExtractDate(text string) string {
	if m := isoDate.FindStringSubmatch(text); m != nil {
		if date, ok := normalizeDate(m[1], m[2], m[3]); ok {
			return date
		}
	}
	if m := monthDayYear.FindStringSubmatch(text); m != nil {
		month := monthAbbreviation[strings.ToLower(m[1])]
		if date, ok := normalizeDate(m[3], strconv.Itoa(int(month)), m[2]); ok {
			return date
		}
	}
	return ""
}

// ParseFilename seeds fields from an upload's file name before OCR runs.
// The date falls back to now.
func (p *Parser) ParseFilename(name string, now time.Time) Fields {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	fields := Fields{
		Method: string(p.locale.methodFor(base)),
		Date:   now.Format(utils.ISODateLayout),
	}
	if run := filenameNumber.FindString(base); run != "" {
		fields.Amount = strings.ReplaceAll(run, ",", "")
	}
	for _, m := range filenameDate.FindAllStringSubmatch(base, -1) {
		if date, ok := normalizeDate(m[1], m[2], m[3]); ok {
			fields.Date = date
			break
		}
	}
	return fields
}

func normalizeDate(year, month, day string) (string, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return "", false
	}
	candidate := fmt.Sprintf("%04d-%02d-%02d", y, m, d)
	if _, err := time.Parse(utils.ISODateLayout, candidate); err != nil {
		return "", false
	}
	return candidate, true
}
