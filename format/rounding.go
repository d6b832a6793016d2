package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rounding selects how formatted numbers are rounded to the pattern's maximum
// fraction digits. The names follow the usual decimal rounding modes.
type Rounding int

const (
	RoundHalfEven Rounding = iota
	RoundHalfUp
	RoundHalfDown
	RoundUp
	RoundDown
	RoundCeiling
	RoundFloor
	RoundUnnecessary
)

var roundingNames = map[Rounding]string{
	RoundHalfEven:    "HALF_EVEN",
	RoundHalfUp:      "HALF_UP",
	RoundHalfDown:    "HALF_DOWN",
	RoundUp:          "UP",
	RoundDown:        "DOWN",
	RoundCeiling:     "CEILING",
	RoundFloor:       "FLOOR",
	RoundUnnecessary: "UNNECESSARY",
}

func (r Rounding) String() string {
	if name, ok := roundingNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Rounding(%d)", int(r))
}

// ParseRounding resolves a rounding mode name. Matching ignores case and
// accepts '-' in place of '_'. The empty string yields RoundHalfEven.
func ParseRounding(name string) (Rounding, error) {
	if name == "" {
		return RoundHalfEven, nil
	}
	want := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	for r, n := range roundingNames {
		if n == want {
			return r, nil
		}
	}
	return RoundHalfEven, fmt.Errorf("%w: %q", ErrUnknownRounding, name)
}

// Apply rounds d to places fraction digits.
func (r Rounding) Apply(d decimal.Decimal, places int32) (decimal.Decimal, error) {
	switch r {
	case RoundHalfEven:
		return d.RoundBank(places), nil
	case RoundHalfUp:
		return d.Round(places), nil
	case RoundHalfDown:
		truncated := d.Truncate(places)
		half := decimal.New(5, -(places + 1))
		if d.Sub(truncated).Abs().Cmp(half) <= 0 {
			return truncated, nil
		}
		return d.Round(places), nil
	case RoundUp:
		return d.RoundUp(places), nil
	case RoundDown:
		return d.RoundDown(places), nil
	case RoundCeiling:
		return d.RoundCeil(places), nil
	case RoundFloor:
		return d.RoundFloor(places), nil
	case RoundUnnecessary:
		if !d.Equal(d.Truncate(places)) {
			return d, fmt.Errorf("%w: %s needs more than %d fraction digits", ErrRoundingNecessary, d, places)
		}
		return d, nil
	default:
		return d, fmt.Errorf("%w: %d", ErrUnknownRounding, int(r))
	}
}
