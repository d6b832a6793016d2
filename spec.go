package cellz

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/zoobzio/cellz/format"
)

// EmptyLiteral stands for the empty string in default values of string
// fields, where an empty parameter means "no default".
const EmptyLiteral = "@empty"

// Params is the raw declarative configuration of one field. Literal values
// (defaults, equals, bounds) are written in the field's own format: a field
// with pattern "#,##0" takes min "1,000".
type Params struct {
	Optional      bool   `yaml:"optional" toml:"optional"`
	Trim          bool   `yaml:"trim" toml:"trim"`
	InputDefault  string `yaml:"input_default" toml:"input_default"`
	OutputDefault string `yaml:"output_default" toml:"output_default"`
	Equals        string `yaml:"equals" toml:"equals"`
	Unique        bool   `yaml:"unique" toml:"unique"`
	UniqueHash    bool   `yaml:"unique_hash" toml:"unique_hash"`
	Min           string `yaml:"min" toml:"min"`
	Max           string `yaml:"max" toml:"max"`

	// Number and date formatting.
	Pattern  string `yaml:"pattern" toml:"pattern"`
	Locale   string `yaml:"locale" toml:"locale"`
	Timezone string `yaml:"timezone" toml:"timezone"`
	Currency string `yaml:"currency" toml:"currency"`
	Rounding string `yaml:"rounding" toml:"rounding"`
	Lenient  *bool  `yaml:"lenient" toml:"lenient"`

	// Booleans.
	TrueValues  []string `yaml:"true_values" toml:"true_values"`
	FalseValues []string `yaml:"false_values" toml:"false_values"`
	TrueText    string   `yaml:"true_text" toml:"true_text"`
	FalseText   string   `yaml:"false_text" toml:"false_text"`
	FailToFalse bool     `yaml:"fail_to_false" toml:"fail_to_false"`
	IgnoreCase  bool     `yaml:"ignore_case" toml:"ignore_case"`

	// Enumerations.
	Choices []string `yaml:"choices" toml:"choices"`

	// Strings.
	MinLength *int   `yaml:"min_length" toml:"min_length"`
	MaxLength *int   `yaml:"max_length" toml:"max_length"`
	Length    *int   `yaml:"length" toml:"length"`
	Regex     string `yaml:"regex" toml:"regex"`
}

// Literal is a configured value kept in both raw and parsed form.
type Literal struct {
	Raw   string
	Value Cell
	// Text is the value rendered in the field's output format. It is set for
	// output defaults only.
	Text string
}

// BooleanSpec holds the vocabularies of a boolean field.
type BooleanSpec struct {
	TrueValues  []string
	FalseValues []string
	TrueText    string
	FalseText   string
	IgnoreCase  bool
	FailToFalse bool
}

// Default boolean vocabularies.
var (
	DefaultTrueValues  = []string{"true", "1", "yes", "on", "y", "t"}
	DefaultFalseValues = []string{"false", "0", "no", "off", "f", "n"}
)

func (b *BooleanSpec) parse(text string) (bool, error) {
	match := func(values []string) bool {
		for _, v := range values {
			if v == text || (b.IgnoreCase && strings.EqualFold(v, text)) {
				return true
			}
		}
		return false
	}
	switch {
	case match(b.TrueValues):
		return true, nil
	case match(b.FalseValues):
		return false, nil
	case b.FailToFalse:
		return false, nil
	}
	return false, fmt.Errorf("%q is neither a true nor a false value", text)
}

func (b *BooleanSpec) format(v bool) string {
	if v {
		return b.TrueText
	}
	return b.FalseText
}

// EnumSpec holds the choices of an enumeration field.
type EnumSpec struct {
	Choices    []string
	IgnoreCase bool
}

func (e *EnumSpec) parse(text string) (string, error) {
	for _, c := range e.Choices {
		if c == text || (e.IgnoreCase && strings.EqualFold(c, text)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%q is not one of %v", text, e.Choices)
}

// TextSpec holds the constraints of a string field. Lengths count runes of the
// NFC-normalized text.
type TextSpec struct {
	MinLength *int
	MaxLength *int
	Length    *int
	Regex     *regexp.Regexp
}

func textLength(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// FieldSpec is the resolved, immutable conversion spec of one field. Build it
// with Normalize.
type FieldSpec struct {
	Name     string
	Type     Type
	Nullable bool
	Optional bool
	Trim     bool

	InputDefault  *Literal
	OutputDefault *Literal
	Equals        *Literal
	Unique        bool
	UniqueHash    bool
	Min           *Literal
	Max           *Literal

	// Number is set when a numeric field has a custom format.
	Number *format.NumberFormat
	// Date is set for every temporal field.
	Date    *format.DateFormat
	Boolean *BooleanSpec
	Enum    *EnumSpec
	Text    *TextSpec
	Lenient bool

	Params Params
}

// Parse converts text to the field's domain value using the field's format.
// It is the conversion the parse stage applies and the one used for literals.
// Lenient temporal fields roll out-of-range components over; see
// truncateTemporal for what a Time keeps.
func (s *FieldSpec) Parse(text string) (Cell, error) {
	k := s.Type.Kind
	switch {
	case k.Numeric() && s.Number != nil:
		d, err := s.Number.Parse(text)
		if err != nil {
			return nil, err
		}
		return fromDecimal(k, d, s.Lenient)
	case k.Numeric():
		return parseCanonical(k, text)
	case k.Temporal():
		t, err := s.Date.Parse(text)
		if err != nil {
			return nil, err
		}
		return truncateTemporal(k, t), nil
	case k == KindBoolean:
		return s.Boolean.parse(text)
	case k == KindEnum:
		return s.Enum.parse(text)
	case k == KindString:
		return text, nil
	}
	return nil, fmt.Errorf("cannot parse %s", k)
}

// Format renders a domain value as the field's output text.
func (s *FieldSpec) Format(v Cell) (string, error) {
	k := s.Type.Kind
	if !k.Accepts(v) {
		return "", fmt.Errorf("%T is not a %s value", v, k)
	}
	switch {
	case k.Numeric() && s.Number != nil:
		d, err := toDecimal(v)
		if err != nil {
			return "", err
		}
		return s.Number.Format(d)
	case k.Temporal():
		return s.Date.Format(v.(time.Time)), nil
	case k == KindBoolean:
		return s.Boolean.format(v.(bool)), nil
	}
	return formatCanonical(v)
}

// HasFormatStage reports whether output chains of the field end with an
// explicit format stage rather than the plain text encoding.
func (s *FieldSpec) HasFormatStage() bool {
	_, ok := formatStageKind(s)
	return ok
}

// truncateTemporal drops the components a kind does not carry. A Time keeps
// only its clock reading, so a lenient "25:00:00" that rolled into the next
// day becomes 01:00:00.
func truncateTemporal(k Kind, t time.Time) time.Time {
	switch k {
	case KindDate:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	case KindTime:
		return time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return t
}
