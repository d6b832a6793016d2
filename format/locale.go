package format

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale is used when a number format names no locale.
var DefaultLocale = language.AmericanEnglish

// ParseLocale accepts BCP 47 tags ("de-DE") and underscore forms ("ja_JP").
// The empty string yields DefaultLocale.
func ParseLocale(s string) (language.Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLocale, nil
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und, fmt.Errorf("%w %q: %v", ErrUnknownLocale, s, err)
	}
	return tag, nil
}

// Symbols are the locale-specific characters used when rendering numbers.
type Symbols struct {
	Decimal rune
	Group   rune
	Minus   rune
}

var defaultSymbols = Symbols{Decimal: '.', Group: ',', Minus: '-'}

// SymbolsFor derives the decimal and grouping separators of a locale from the
// way it prints a sample number.
func SymbolsFor(tag language.Tag) Symbols {
	sample := message.NewPrinter(tag).Sprint(number.Decimal(1234567.5, number.MinFractionDigits(1)))

	var seps []rune
	for _, r := range sample {
		if !unicode.IsDigit(r) {
			seps = append(seps, r)
		}
	}

	switch len(seps) {
	case 0:
		return defaultSymbols
	case 1:
		sym := Symbols{Decimal: seps[0], Group: ',', Minus: '-'}
		if sym.Decimal == ',' {
			sym.Group = '.'
		}
		return sym
	}

	sym := Symbols{Group: seps[0], Decimal: seps[len(seps)-1], Minus: '-'}
	if sym.Group == sym.Decimal {
		return defaultSymbols
	}
	return sym
}

// isGroupRune reports whether r may stand for the grouping separator g in
// parsed text. Locales that group with a (narrow) no-break space also accept a
// plain space.
func isGroupRune(r, g rune) bool {
	if r == g {
		return true
	}
	if isSpaceLike(g) {
		return isSpaceLike(r)
	}
	return false
}

func isSpaceLike(r rune) bool {
	return unicode.IsSpace(r) || r == '\u00a0' || r == '\u202f'
}

// ParseCurrency resolves an ISO 4217 code.
func ParseCurrency(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("%w %q: %v", ErrUnknownCurrency, code, err)
	}
	return unit, nil
}

// currencyFor returns the configured unit, or the locale's own currency when
// none is configured.
func currencyFor(code string, tag language.Tag) (currency.Unit, bool, error) {
	if code != "" {
		unit, err := ParseCurrency(code)
		return unit, err == nil, err
	}
	region, _ := tag.Region()
	unit, ok := currency.FromRegion(region)
	return unit, ok, nil
}

// currencySymbol renders the unit the way a reader in tag expects: the local
// symbol for the locale's own currency, the ISO code for anything foreign.
func currencySymbol(unit currency.Unit, tag language.Tag) string {
	region, _ := tag.Region()
	if home, ok := currency.FromRegion(region); ok && home == unit {
		return message.NewPrinter(tag).Sprint(currency.NarrowSymbol(unit))
	}
	return unit.String()
}
