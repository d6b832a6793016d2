package cellz

import (
	"cmp"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the domain type of a field.
//
//	Kind            Go value
//	KindByte        int8
//	KindShort       int16
//	KindInt         int32
//	KindLong        int64
//	KindFloat       float32
//	KindDouble      float64
//	KindBigInteger  *big.Int
//	KindBigDecimal  decimal.Decimal
//	KindDate        time.Time
//	KindTime        time.Time
//	KindTimestamp   time.Time
//	KindBoolean     bool
//	KindString      string
//	KindEnum        string
type Kind int

const (
	KindInvalid Kind = iota
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBigInteger
	KindBigDecimal
	KindDate
	KindTime
	KindTimestamp
	KindBoolean
	KindString
	KindEnum
)

var kindNames = map[Kind]string{
	KindByte:       "byte",
	KindShort:      "short",
	KindInt:        "int",
	KindLong:       "long",
	KindFloat:      "float",
	KindDouble:     "double",
	KindBigInteger: "big_integer",
	KindBigDecimal: "big_decimal",
	KindDate:       "date",
	KindTime:       "time",
	KindTimestamp:  "timestamp",
	KindBoolean:    "boolean",
	KindString:     "string",
	KindEnum:       "enum",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a kind name. Matching ignores case and accepts '-' for
// '_' along with the aliases "integer", "bigint" and "decimal".
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	switch n {
	case "integer":
		return KindInt, nil
	case "bigint", "biginteger":
		return KindBigInteger, nil
	case "decimal", "bigdecimal":
		return KindBigDecimal, nil
	case "bool":
		return KindBoolean, nil
	}
	for k, kn := range kindNames {
		if kn == n {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown kind %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so schema files can name
// kinds directly.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Numeric reports whether k is one of the number kinds.
func (k Kind) Numeric() bool {
	return k >= KindByte && k <= KindBigDecimal
}

// Integral reports whether k holds whole numbers only.
func (k Kind) Integral() bool {
	switch k {
	case KindByte, KindShort, KindInt, KindLong, KindBigInteger:
		return true
	}
	return false
}

// Temporal reports whether k is a date, time or timestamp.
func (k Kind) Temporal() bool {
	return k == KindDate || k == KindTime || k == KindTimestamp
}

// HasPrimitive reports whether k has a primitive (non-nullable) form.
func (k Kind) HasPrimitive() bool {
	return (k >= KindByte && k <= KindDouble) || k == KindBoolean
}

// Zero returns the primitive zero value of k, or nil when k has no primitive
// form.
func (k Kind) Zero() Cell {
	switch k {
	case KindByte:
		return int8(0)
	case KindShort:
		return int16(0)
	case KindInt:
		return int32(0)
	case KindLong:
		return int64(0)
	case KindFloat:
		return float32(0)
	case KindDouble:
		return float64(0)
	case KindBoolean:
		return false
	}
	return nil
}

// Accepts reports whether v has the Go type that represents k.
func (k Kind) Accepts(v Cell) bool {
	switch v.(type) {
	case int8:
		return k == KindByte
	case int16:
		return k == KindShort
	case int32:
		return k == KindInt
	case int64:
		return k == KindLong
	case float32:
		return k == KindFloat
	case float64:
		return k == KindDouble
	case *big.Int:
		return k == KindBigInteger
	case decimal.Decimal:
		return k == KindBigDecimal
	case time.Time:
		return k.Temporal()
	case bool:
		return k == KindBoolean
	case string:
		return k == KindString || k == KindEnum
	}
	return false
}

// Family groups types by how they treat null.
type Family int

const (
	// FamilyPrimitive types cannot hold null; optional cells read as zero.
	FamilyPrimitive Family = iota
	// FamilyBoxed types may hold null.
	FamilyBoxed
	// FamilyTemporal types may hold null and carry a date pattern.
	FamilyTemporal
)

func (f Family) String() string {
	switch f {
	case FamilyPrimitive:
		return "primitive"
	case FamilyBoxed:
		return "boxed"
	case FamilyTemporal:
		return "temporal"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Type is a field's target type.
type Type struct {
	Kind      Kind
	Primitive bool
}

// Family returns the null-handling family of t.
func (t Type) Family() Family {
	switch {
	case t.Kind.Temporal():
		return FamilyTemporal
	case t.Primitive:
		return FamilyPrimitive
	}
	return FamilyBoxed
}

func (t Type) String() string {
	if t.Primitive {
		return t.Kind.String() + " (primitive)"
	}
	return t.Kind.String()
}

// compare orders two values of the same kind.
func compare(a, b Cell) (int, error) {
	switch x := a.(type) {
	case int8:
		if y, ok := b.(int8); ok {
			return cmp.Compare(x, y), nil
		}
	case int16:
		if y, ok := b.(int16); ok {
			return cmp.Compare(x, y), nil
		}
	case int32:
		if y, ok := b.(int32); ok {
			return cmp.Compare(x, y), nil
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y), nil
		}
	case float32:
		if y, ok := b.(float32); ok {
			return cmp.Compare(x, y), nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y), nil
		}
	case *big.Int:
		if y, ok := b.(*big.Int); ok {
			return x.Cmp(y), nil
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// uniqueKey renders v so that equal values of one kind share a key even when
// their textual forms differ ("12,345" and "12345"; 1.50 and 1.5).
func uniqueKey(v Cell) (string, error) {
	switch x := v.(type) {
	case int8, int16, int32, int64, bool, string:
		return fmt.Sprint(x), nil
	case float32:
		if x == 0 {
			x = 0 // -0 shares the key of 0
		}
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		if x == 0 {
			x = 0
		}
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case *big.Int:
		return x.String(), nil
	case decimal.Decimal:
		return x.String(), nil
	case time.Time:
		return strconv.FormatInt(x.UnixNano(), 10), nil
	}
	return "", fmt.Errorf("no unique key for %T", v)
}

// toDecimal widens a numeric value.
func toDecimal(v Cell) (decimal.Decimal, error) {
	switch x := v.(type) {
	case int8:
		return decimal.NewFromInt(int64(x)), nil
	case int16:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case *big.Int:
		return decimal.NewFromBigInt(x, 0), nil
	case decimal.Decimal:
		return x, nil
	}
	return decimal.Zero, fmt.Errorf("%T is not a number", v)
}

// fromDecimal narrows d to k. Whole-number kinds reject fractions unless
// lenient, in which case the fraction is truncated.
func fromDecimal(k Kind, d decimal.Decimal, lenient bool) (Cell, error) {
	if k.Integral() && !d.Equal(d.Truncate(0)) {
		if !lenient {
			return nil, fmt.Errorf("%s is not a whole number", d)
		}
		d = d.Truncate(0)
	}
	switch k {
	case KindByte:
		return narrow[int8](d, math.MinInt8, math.MaxInt8)
	case KindShort:
		return narrow[int16](d, math.MinInt16, math.MaxInt16)
	case KindInt:
		return narrow[int32](d, math.MinInt32, math.MaxInt32)
	case KindLong:
		return narrow[int64](d, math.MinInt64, math.MaxInt64)
	case KindFloat:
		f, _ := d.Float64()
		if math.Abs(f) > math.MaxFloat32 {
			return nil, fmt.Errorf("%s is out of range for float", d)
		}
		return float32(f), nil
	case KindDouble:
		f, _ := d.Float64()
		return f, nil
	case KindBigInteger:
		return d.BigInt(), nil
	case KindBigDecimal:
		return d, nil
	}
	return nil, fmt.Errorf("%s is not a numeric kind", k)
}

func narrow[T int8 | int16 | int32 | int64](d decimal.Decimal, lo, hi int64) (Cell, error) {
	if d.LessThan(decimal.NewFromInt(lo)) || d.GreaterThan(decimal.NewFromInt(hi)) {
		return nil, fmt.Errorf("%s is out of range [%d, %d]", d, lo, hi)
	}
	return T(d.IntPart()), nil
}

// parseCanonical reads text in the kind's plain grammar.
func parseCanonical(k Kind, text string) (Cell, error) {
	switch k {
	case KindByte, KindShort, KindInt, KindLong:
		bits := map[Kind]int{KindByte: 8, KindShort: 16, KindInt: 32, KindLong: 64}[k]
		n, err := strconv.ParseInt(text, 10, bits)
		if err != nil {
			return nil, err
		}
		switch k {
		case KindByte:
			return int8(n), nil
		case KindShort:
			return int16(n), nil
		case KindInt:
			return int32(n), nil
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case KindDouble:
		return strconv.ParseFloat(text, 64)
	case KindBigInteger:
		n, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", text)
		}
		return n, nil
	case KindBigDecimal:
		return decimal.NewFromString(text)
	}
	return nil, fmt.Errorf("%s has no canonical number grammar", k)
}

// formatCanonical renders v in its plain grammar.
func formatCanonical(v Cell) (string, error) {
	switch x := v.(type) {
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case *big.Int:
		return x.String(), nil
	case decimal.Decimal:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return x, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	}
	return "", fmt.Errorf("cannot encode %T", v)
}
