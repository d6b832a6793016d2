package cellz

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/zoobzio/cellz/format"
)

// NormalizeOption configures Normalize.
type NormalizeOption func(*normalizer)

// WithFormats sets the provider that compiles number and date patterns. The
// shared format.Default cache is used otherwise.
func WithFormats(p format.Provider) NormalizeOption {
	return func(n *normalizer) {
		n.formats = p
	}
}

type normalizer struct {
	formats format.Provider
	spec    *FieldSpec
}

// Default patterns used when a number field asks for locale handling without
// giving a pattern.
const (
	DefaultIntegerPattern  = "#,##0"
	DefaultDecimalPattern  = "#,##0.###"
	DefaultCurrencyPattern = "¤#,##0.00"
)

// Normalize resolves a field declaration into a FieldSpec. Every literal is
// parsed with the field's own format, so a malformed default or bound is
// reported here as a *ConfigError rather than on the first row.
func Normalize(name string, typ Type, p Params, opts ...NormalizeOption) (*FieldSpec, error) {
	n := &normalizer{formats: format.Default()}
	for _, opt := range opts {
		opt(n)
	}
	n.spec = &FieldSpec{
		Name:       name,
		Type:       typ,
		Nullable:   !typ.Primitive && p.Optional,
		Optional:   p.Optional,
		Trim:       p.Trim,
		Unique:     p.Unique || p.UniqueHash,
		UniqueHash: p.UniqueHash,
		Params:     p,
	}

	if typ.Kind == KindInvalid {
		return nil, n.fail("type", "", errors.New("unknown kind"))
	}
	if typ.Primitive && !typ.Kind.HasPrimitive() {
		return nil, n.fail("type", typ.Kind.String(), ErrNoPrimitive)
	}
	if err := n.checkOptions(p); err != nil {
		return nil, err
	}

	var err error
	switch k := typ.Kind; {
	case k.Numeric():
		err = n.numberFormat(p)
	case k.Temporal():
		err = n.dateFormat(p)
	case k == KindBoolean:
		n.boolean(p)
	case k == KindEnum:
		err = n.enum(p)
	case k == KindString:
		err = n.text(p)
	}
	if err != nil {
		return nil, err
	}

	if err := n.literals(p); err != nil {
		return nil, err
	}
	return n.spec, nil
}

// MustNormalize is like Normalize but panics on error. It is intended for
// package-level field declarations.
func MustNormalize(name string, typ Type, p Params, opts ...NormalizeOption) *FieldSpec {
	spec, err := Normalize(name, typ, p, opts...)
	if err != nil {
		panic(err)
	}
	return spec
}

func (n *normalizer) fail(param, value string, err error) *ConfigError {
	return &ConfigError{Field: n.spec.Name, Param: param, Value: value, Err: err}
}

// checkOptions rejects options that do not apply to the field's kind.
func (n *normalizer) checkOptions(p Params) error {
	k := n.spec.Type.Kind
	numeric, temporal := k.Numeric(), k.Temporal()
	isString, isBool, isEnum := k == KindString, k == KindBoolean, k == KindEnum

	checks := []struct {
		param string
		set   bool
		ok    bool
	}{
		{"pattern", p.Pattern != "", numeric || temporal},
		{"locale", p.Locale != "", numeric || temporal},
		{"currency", p.Currency != "", numeric},
		{"rounding", p.Rounding != "", numeric},
		{"timezone", p.Timezone != "", temporal},
		{"lenient", p.Lenient != nil, numeric || temporal},
		{"true_values", len(p.TrueValues) > 0, isBool},
		{"false_values", len(p.FalseValues) > 0, isBool},
		{"true_text", p.TrueText != "", isBool},
		{"false_text", p.FalseText != "", isBool},
		{"fail_to_false", p.FailToFalse, isBool},
		{"ignore_case", p.IgnoreCase, isBool || isEnum},
		{"choices", len(p.Choices) > 0, isEnum},
		{"min_length", p.MinLength != nil, isString},
		{"max_length", p.MaxLength != nil, isString},
		{"length", p.Length != nil, isString},
		{"regex", p.Regex != "", isString},
		{"min", p.Min != "", !isBool && !isEnum},
		{"max", p.Max != "", !isBool && !isEnum},
	}
	for _, c := range checks {
		if c.set && !c.ok {
			return n.fail(c.param, "", fmt.Errorf("%w: %s", ErrIncompatibleOption, k))
		}
	}
	return nil
}

func (n *normalizer) numberFormat(p Params) error {
	n.spec.Lenient = p.Lenient != nil && *p.Lenient
	if p.Pattern == "" && p.Locale == "" && p.Currency == "" && p.Rounding == "" {
		return nil
	}

	tag, err := format.ParseLocale(p.Locale)
	if err != nil {
		return n.fail("locale", p.Locale, err)
	}
	rounding, err := format.ParseRounding(p.Rounding)
	if err != nil {
		return n.fail("rounding", p.Rounding, err)
	}
	if p.Currency != "" {
		if _, err := format.ParseCurrency(p.Currency); err != nil {
			return n.fail("currency", p.Currency, err)
		}
	}

	pattern := p.Pattern
	switch {
	case pattern != "":
	case p.Currency != "":
		pattern = DefaultCurrencyPattern
	case n.spec.Type.Kind.Integral():
		pattern = DefaultIntegerPattern
	default:
		pattern = DefaultDecimalPattern
	}

	f, err := n.formats.Number(format.NumberOptions{
		Pattern:  pattern,
		Locale:   tag,
		Currency: p.Currency,
		Rounding: rounding,
		Lenient:  n.spec.Lenient,
	})
	if err != nil {
		return n.fail("pattern", pattern, err)
	}
	n.spec.Number = f
	return nil
}

func (n *normalizer) dateFormat(p Params) error {
	n.spec.Lenient = p.Lenient == nil || *p.Lenient
	if p.Locale != "" {
		if _, err := format.ParseLocale(p.Locale); err != nil {
			return n.fail("locale", p.Locale, err)
		}
	}
	loc, err := format.ParseTimezone(p.Timezone)
	if err != nil {
		return n.fail("timezone", p.Timezone, err)
	}

	pattern := p.Pattern
	if pattern == "" {
		switch n.spec.Type.Kind {
		case KindDate:
			pattern = format.DatePattern
		case KindTime:
			pattern = format.TimePattern
		default:
			pattern = format.TimestampPattern
		}
	}

	f, err := n.formats.Date(format.DateOptions{Pattern: pattern, Location: loc, Lenient: n.spec.Lenient})
	if err != nil {
		return n.fail("pattern", pattern, err)
	}
	n.spec.Date = f
	return nil
}

func (n *normalizer) boolean(p Params) {
	b := &BooleanSpec{
		TrueValues:  p.TrueValues,
		FalseValues: p.FalseValues,
		TrueText:    p.TrueText,
		FalseText:   p.FalseText,
		IgnoreCase:  p.IgnoreCase,
		FailToFalse: p.FailToFalse,
	}
	if len(b.TrueValues) == 0 {
		b.TrueValues = DefaultTrueValues
	}
	if len(b.FalseValues) == 0 {
		b.FalseValues = DefaultFalseValues
	}
	if b.TrueText == "" {
		b.TrueText = "true"
	}
	if b.FalseText == "" {
		b.FalseText = "false"
	}
	n.spec.Boolean = b
}

func (n *normalizer) enum(p Params) error {
	if len(p.Choices) == 0 {
		return n.fail("choices", "", ErrMissingOption)
	}
	n.spec.Enum = &EnumSpec{Choices: p.Choices, IgnoreCase: p.IgnoreCase}
	return nil
}

func (n *normalizer) text(p Params) error {
	t := &TextSpec{MinLength: p.MinLength, MaxLength: p.MaxLength, Length: p.Length}

	for param, v := range map[string]*int{"min_length": p.MinLength, "max_length": p.MaxLength, "length": p.Length} {
		if v != nil && *v < 0 {
			return n.fail(param, fmt.Sprint(*v), errors.New("must not be negative"))
		}
	}
	if p.Length != nil && (p.MinLength != nil || p.MaxLength != nil) {
		return n.fail("length", fmt.Sprint(*p.Length), fmt.Errorf("%w: cannot be combined with min_length or max_length", ErrIncompatibleOption))
	}
	if p.MinLength != nil && p.MaxLength != nil && *p.MinLength > *p.MaxLength {
		return n.fail("min_length", fmt.Sprint(*p.MinLength), ErrMinExceedsMax)
	}
	if p.Regex != "" {
		re, err := regexp.Compile(`^(?:` + p.Regex + `)$`)
		if err != nil {
			return n.fail("regex", p.Regex, err)
		}
		t.Regex = re
	}
	n.spec.Text = t
	return nil
}

// literals parses defaults, the equals value and bounds with the field's
// format.
func (n *normalizer) literals(p Params) error {
	s := n.spec
	var err error

	if s.InputDefault, err = n.literal("input_default", p.InputDefault); err != nil {
		return err
	}
	if s.OutputDefault, err = n.literal("output_default", p.OutputDefault); err != nil {
		return err
	}
	if s.OutputDefault != nil {
		if s.OutputDefault.Text, err = s.Format(s.OutputDefault.Value); err != nil {
			return n.fail("output_default", p.OutputDefault, err)
		}
	}
	if s.Equals, err = n.literal("equals", p.Equals); err != nil {
		return err
	}
	if s.Min, err = n.literal("min", p.Min); err != nil {
		return err
	}
	if s.Max, err = n.literal("max", p.Max); err != nil {
		return err
	}

	if s.Min != nil && s.Max != nil {
		c, err := compare(s.Min.Value, s.Max.Value)
		if err != nil {
			return n.fail("min", p.Min, err)
		}
		if c > 0 {
			return n.fail("min", p.Min, fmt.Errorf("%w: %s > %s", ErrMinExceedsMax, p.Min, p.Max))
		}
	}
	return nil
}

func (n *normalizer) literal(param, raw string) (*Literal, error) {
	if raw == "" {
		return nil, nil
	}
	text := raw
	if raw == EmptyLiteral {
		if n.spec.Type.Kind != KindString {
			return nil, n.fail(param, raw, fmt.Errorf("%w: %s", ErrIncompatibleOption, n.spec.Type.Kind))
		}
		text = ""
	}
	v, err := n.spec.Parse(text)
	if err != nil {
		return nil, n.fail(param, raw, err)
	}
	return &Literal{Raw: raw, Value: v}, nil
}
