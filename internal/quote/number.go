package quote

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumber is returned when a string holds no usable number.
var ErrInvalidNumber = errors.New("invalid number")

// numberToken matches one price as a provider shows it: an optional
// "Label:" prefix, an optional currency, the sign, the digits and an
// optional currency or percent suffix. Anything else around the digits makes
// the text invalid.
var numberToken = regexp.MustCompile(
	`^(?:[^\d:+\-−]*:)?` + ws + `*[\p{L}\p{Sc}]*` + ws + `*([+\-−]?)` + ws + `*` +
		`(\d[\d.,\s\x{00A0}\x{202F}]*?)[.,]?` + ws + `*[\p{L}\p{Sc}%]*` + ws + `*$`)

// spaceGrouped is "15 500" or "1 234,56": spaces only between thousands.
var spaceGrouped = regexp.MustCompile(`^\d{1,3}(?:` + ws + `\d{3})+(?:[.,]\d+)?$`)

const ws = `[\s\x{00A0}\x{202F}]`

// ParseNumber reads a price written with either regional separator
// convention. When both '.' and ',' appear, whichever occurs last is the
// decimal separator. When only one kind appears it is a thousands separator
// if it repeats or is followed by exactly three digits, otherwise a decimal
// separator. The text must hold exactly one number; a label, currency, '%'
// and a sign may surround it.
func ParseNumber(s string) (decimal.Decimal, error) {
	m := numberToken.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	negative := m[1] == "-" || m[1] == "−"
	digits := m[2]

	if strings.IndexFunc(digits, unicode.IsSpace) >= 0 {
		if !spaceGrouped.MatchString(digits) {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
		}
		digits = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, digits)
	}

	normalized, err := normalizeSeparators(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", err, s)
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func normalizeSeparators(s string) (string, error) {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		decimalSep, thousandsSep := ",", "."
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			decimalSep, thousandsSep = ".", ","
		}
		if strings.Count(s, decimalSep) > 1 {
			return "", ErrInvalidNumber
		}
		if strings.Index(s, thousandsSep) > strings.Index(s, decimalSep) {
			return "", ErrInvalidNumber
		}
		s = strings.ReplaceAll(s, thousandsSep, "")
		return strings.Replace(s, decimalSep, ".", 1), nil

	case dots+commas == 0:
		return s, nil
	}

	sep := "."
	if commas > 0 {
		sep = ","
	}
	if dots+commas > 1 {
		return strings.ReplaceAll(s, sep, ""), nil
	}
	if len(s)-strings.Index(s, sep)-1 == 3 {
		return strings.Replace(s, sep, "", 1), nil
	}
	return strings.Replace(s, sep, ".", 1), nil
}

// FormatChange renders a change percentage as a signed two-decimal string
// such as "+1.25%". Unparseable input yields nil.
func FormatChange(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := ParseNumber(raw)
	if err != nil {
		return nil
	}
	return formatChangeDecimal(d)
}

func formatChangeDecimal(d decimal.Decimal) *string {
	out := d.StringFixed(2) + "%"
	if d.IsPositive() {
		out = "+" + out
	}
	return &out
}
