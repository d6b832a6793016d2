package format

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// NumberOptions describe a locale-aware number format.
type NumberOptions struct {
	// Pattern uses the DecimalFormat grammar: '#' optional digit, '0' required
	// digit, ',' grouping, '.' decimal point, '%' percent, '‰' per mille, '¤'
	// currency symbol ('¤¤' ISO code), quotes for literals and ';' before an
	// optional negative subpattern.
	Pattern  string
	Locale   language.Tag
	Currency string
	Rounding Rounding
	// Lenient parsing ignores trailing text and a missing suffix.
	Lenient bool
}

// NumberFormat parses and formats decimals according to a compiled pattern.
// It is immutable and safe for concurrent use.
type NumberFormat struct {
	opts       NumberOptions
	symbols    Symbols
	posPrefix  string
	posSuffix  string
	negPrefix  string
	negSuffix  string
	minInt     int
	minFrac    int
	maxFrac    int
	groupSize  int
	multiplier int64
}

type affixKind int

const (
	affixLiteral affixKind = iota
	affixCurrencySymbol
	affixCurrencyCode
	affixPercent
	affixPerMille
	affixMinus
)

type affixToken struct {
	kind affixKind
	text string
}

type numberPattern struct {
	posPrefix, posSuffix []affixToken
	negPrefix, negSuffix []affixToken
	hasNeg               bool
	minInt               int
	minFrac              int
	maxFrac              int
	groupSize            int
}

// NewNumberFormat compiles opts. A zero Locale means DefaultLocale.
func NewNumberFormat(opts NumberOptions) (*NumberFormat, error) {
	if opts.Pattern == "" {
		return nil, patternError(opts.Pattern, "empty")
	}
	if opts.Locale == language.Und {
		opts.Locale = DefaultLocale
	}

	p, err := parseNumberPattern(opts.Pattern)
	if err != nil {
		return nil, err
	}

	unit, hasUnit, err := currencyFor(opts.Currency, opts.Locale)
	if err != nil {
		return nil, err
	}

	f := &NumberFormat{
		opts:       opts,
		symbols:    SymbolsFor(opts.Locale),
		minInt:     p.minInt,
		minFrac:    p.minFrac,
		maxFrac:    p.maxFrac,
		groupSize:  p.groupSize,
		multiplier: 1,
	}

	render := func(tokens []affixToken) string {
		var b strings.Builder
		for _, tok := range tokens {
			switch tok.kind {
			case affixLiteral:
				b.WriteString(tok.text)
			case affixCurrencySymbol:
				if hasUnit {
					b.WriteString(currencySymbol(unit, opts.Locale))
				} else {
					b.WriteString("XXX")
				}
			case affixCurrencyCode:
				if hasUnit {
					b.WriteString(unit.String())
				} else {
					b.WriteString("XXX")
				}
			case affixPercent:
				b.WriteRune('%')
				f.multiplier = 100
			case affixPerMille:
				b.WriteRune('‰')
				f.multiplier = 1000
			case affixMinus:
				b.WriteRune(f.symbols.Minus)
			}
		}
		return b.String()
	}

	f.posPrefix = render(p.posPrefix)
	f.posSuffix = render(p.posSuffix)
	if p.hasNeg {
		f.negPrefix = render(p.negPrefix)
		f.negSuffix = render(p.negSuffix)
	} else {
		f.negPrefix = string(f.symbols.Minus) + f.posPrefix
		f.negSuffix = f.posSuffix
	}
	return f, nil
}

// Options returns the options the format was compiled from.
func (f *NumberFormat) Options() NumberOptions {
	return f.opts
}

// Pattern returns the source pattern.
func (f *NumberFormat) Pattern() string {
	return f.opts.Pattern
}

// Format renders d, rounding it to the pattern's maximum fraction digits with
// the configured rounding mode.
func (f *NumberFormat) Format(d decimal.Decimal) (string, error) {
	if f.multiplier != 1 {
		d = d.Mul(decimal.NewFromInt(f.multiplier))
	}
	rounded, err := f.opts.Rounding.Apply(d, int32(f.maxFrac))
	if err != nil {
		return "", err
	}

	negative := rounded.Sign() < 0
	digits := rounded.Abs().StringFixed(int32(f.maxFrac))
	intDigits, fracDigits, _ := strings.Cut(digits, ".")

	for len(fracDigits) > f.minFrac && strings.HasSuffix(fracDigits, "0") {
		fracDigits = fracDigits[:len(fracDigits)-1]
	}
	if intDigits == "0" && f.minInt == 0 {
		intDigits = ""
	}
	for len(intDigits) < f.minInt {
		intDigits = "0" + intDigits
	}

	var b strings.Builder
	if negative {
		b.WriteString(f.negPrefix)
	} else {
		b.WriteString(f.posPrefix)
	}
	if intDigits == "" && fracDigits == "" {
		b.WriteByte('0')
	} else {
		b.WriteString(f.group(intDigits))
		if fracDigits != "" {
			b.WriteRune(f.symbols.Decimal)
			b.WriteString(fracDigits)
		}
	}
	if negative {
		b.WriteString(f.negSuffix)
	} else {
		b.WriteString(f.posSuffix)
	}
	return b.String(), nil
}

func (f *NumberFormat) group(digits string) string {
	if f.groupSize <= 0 || len(digits) <= f.groupSize {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % f.groupSize
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += f.groupSize {
		if b.Len() > 0 {
			b.WriteRune(f.symbols.Group)
		}
		b.WriteString(digits[i : i+f.groupSize])
	}
	return b.String()
}

// Parse reads a decimal from text. Strict parsing requires the whole text to
// match the pattern; lenient parsing stops at the first character that cannot
// belong to the number.
func (f *NumberFormat) Parse(text string) (decimal.Decimal, error) {
	pos, posEnd, posOK := f.scan(text, f.posPrefix, f.posSuffix)
	neg, negEnd, negOK := f.scan(text, f.negPrefix, f.negSuffix)

	var digits string
	var end int
	negative := false
	switch {
	case negOK && (!posOK || negEnd > posEnd || (negEnd == posEnd && len(f.negPrefix) > len(f.posPrefix))):
		digits, end, negative = neg, negEnd, true
	case posOK:
		digits, end = pos, posEnd
	default:
		return decimal.Zero, &ParseError{Text: text, Pattern: f.opts.Pattern, Offset: 0, Reason: "no number found"}
	}

	if !f.opts.Lenient && end != len(text) {
		return decimal.Zero, &ParseError{Text: text, Pattern: f.opts.Pattern, Offset: end, Reason: "unexpected trailing text"}
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, &ParseError{Text: text, Pattern: f.opts.Pattern, Offset: 0, Reason: err.Error()}
	}
	if negative {
		d = d.Neg()
	}
	if f.multiplier != 1 {
		d = d.Div(decimal.NewFromInt(f.multiplier))
	}
	return d, nil
}

// scan matches prefix, digits and suffix at the start of text and returns the
// digits in canonical form along with the end offset.
func (f *NumberFormat) scan(text, prefix, suffix string) (string, int, bool) {
	if !strings.HasPrefix(text, prefix) {
		return "", 0, false
	}

	var b strings.Builder
	i := len(prefix)
	seenDigit, seenDecimal := false, false
	lastGroup, lastGroupEnd := -1, -1

scan:
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == f.symbols.Decimal && !seenDecimal:
			b.WriteByte('.')
			seenDecimal = true
		case f.groupSize > 0 && seenDigit && !seenDecimal && isGroupRune(r, f.symbols.Group):
			lastGroup, lastGroupEnd = i, i+size
		default:
			break scan
		}
		i += size
	}

	if !seenDigit {
		return "", 0, false
	}
	// A trailing separator belongs to the text after the number.
	if lastGroup >= 0 && lastGroupEnd == i && !seenDecimal {
		i = lastGroup
	}

	digits := strings.TrimSuffix(b.String(), ".")
	if strings.HasPrefix(digits, ".") {
		digits = "0" + digits
	}
	if strings.HasPrefix(text[i:], suffix) {
		return digits, i + len(suffix), true
	}
	if f.opts.Lenient {
		return digits, i, true
	}
	return "", 0, false
}

func parseNumberPattern(pattern string) (*numberPattern, error) {
	positive, negative, hasNeg := splitSubpatterns(pattern)

	prefix, body, suffix, err := splitAffixes(pattern, positive)
	if err != nil {
		return nil, err
	}
	p := &numberPattern{hasNeg: hasNeg}
	if p.posPrefix, err = parseAffix(pattern, prefix); err != nil {
		return nil, err
	}
	if p.posSuffix, err = parseAffix(pattern, suffix); err != nil {
		return nil, err
	}

	intPart, fracPart, _ := strings.Cut(body, ".")
	if strings.ContainsAny(fracPart, ".,") {
		return nil, patternError(pattern, "misplaced separator in fraction")
	}
	if idx := strings.LastIndexByte(intPart, ','); idx >= 0 {
		p.groupSize = len(intPart) - idx - 1
		if p.groupSize == 0 {
			return nil, patternError(pattern, "grouping separator without digits")
		}
	}
	intDigits := strings.ReplaceAll(intPart, ",", "")
	if strings.Contains(intDigits, "0#") {
		return nil, patternError(pattern, "'#' after '0' in integer part")
	}
	if strings.Contains(fracPart, "#0") {
		return nil, patternError(pattern, "'0' after '#' in fraction part")
	}
	if intDigits == "" && fracPart == "" {
		return nil, patternError(pattern, "no digits")
	}
	p.minInt = strings.Count(intDigits, "0")
	p.minFrac = strings.Count(fracPart, "0")
	p.maxFrac = len(fracPart)

	if hasNeg {
		negPrefix, _, negSuffix, err := splitAffixes(pattern, negative)
		if err != nil {
			return nil, err
		}
		if p.negPrefix, err = parseAffix(pattern, negPrefix); err != nil {
			return nil, err
		}
		if p.negSuffix, err = parseAffix(pattern, negSuffix); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// splitSubpatterns splits at the first unquoted ';'.
func splitSubpatterns(pattern string) (string, string, bool) {
	quoted := false
	for i, r := range pattern {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ';' && !quoted:
			return pattern[:i], pattern[i+1:], true
		}
	}
	return pattern, "", false
}

// splitAffixes separates a subpattern into prefix, number body and suffix.
func splitAffixes(pattern, sub string) (string, string, string, error) {
	quoted := false
	start, end := -1, -1
	for i, r := range sub {
		if r == '\'' {
			quoted = !quoted
			if start >= 0 && end < 0 {
				end = i
			}
			continue
		}
		if quoted {
			continue
		}
		isBody := strings.ContainsRune("#0,.", r)
		switch {
		case isBody && start < 0:
			start = i
		case isBody && end >= 0:
			return "", "", "", patternError(pattern, "digits after suffix")
		case !isBody && start >= 0 && end < 0:
			end = i
		}
	}
	if quoted {
		return "", "", "", patternError(pattern, "unterminated quote")
	}
	if start < 0 {
		return "", "", "", patternError(pattern, "no digits")
	}
	if end < 0 {
		end = len(sub)
	}
	return sub[:start], sub[start:end], sub[end:], nil
}

func parseAffix(pattern, affix string) ([]affixToken, error) {
	var tokens []affixToken
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, affixToken{kind: affixLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	runes := []rune(affix)
	quoted := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				lit.WriteRune('\'')
				i++
				continue
			}
			quoted = !quoted
			continue
		}
		if quoted {
			lit.WriteRune(r)
			continue
		}
		switch r {
		case '¤':
			flush()
			if i+1 < len(runes) && runes[i+1] == '¤' {
				tokens = append(tokens, affixToken{kind: affixCurrencyCode})
				i++
			} else {
				tokens = append(tokens, affixToken{kind: affixCurrencySymbol})
			}
		case '%':
			flush()
			tokens = append(tokens, affixToken{kind: affixPercent})
		case '‰':
			flush()
			tokens = append(tokens, affixToken{kind: affixPerMille})
		case '-':
			flush()
			tokens = append(tokens, affixToken{kind: affixMinus})
		default:
			lit.WriteRune(r)
		}
	}
	if quoted {
		return nil, patternError(pattern, "unterminated quote")
	}
	flush()
	return tokens, nil
}
