package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one
	"unicode"
)

// Default temporal patterns.
const (
	TimestampPattern = "yyyy-MM-dd HH:mm:ss.SSS"
	DatePattern      = "yyyy-MM-dd"
	TimePattern      = "HH:mm:ss"
)

// DateOptions describe a temporal format.
type DateOptions struct {
	// Pattern uses the SimpleDateFormat letters y M d H k h K m s S E a Z X z,
	// with quoted literals.
	Pattern string
	// Location is the zone wall-clock fields are read and written in. Nil
	// means the host zone.
	Location *time.Location
	// Lenient parsing rolls out-of-range fields over (February 30 becomes
	// March 1) and ignores trailing text.
	Lenient bool
}

// DateFormat parses and formats instants according to a compiled pattern.
// It is immutable and safe for concurrent use.
type DateFormat struct {
	opts   DateOptions
	fields []dateField
}

type dateField struct {
	letter  rune
	width   int
	literal string
}

func (f dateField) numeric() bool {
	switch f.letter {
	case 'y', 'd', 'H', 'k', 'h', 'K', 'm', 's', 'S':
		return true
	case 'M':
		return f.width <= 2
	}
	return false
}

const dateLetters = "yMdHkhKmsSEaZXz"

// NewDateFormat compiles opts.
func NewDateFormat(opts DateOptions) (*DateFormat, error) {
	if opts.Pattern == "" {
		return nil, patternError(opts.Pattern, "empty")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	fields, err := parseDatePattern(opts.Pattern)
	if err != nil {
		return nil, err
	}
	return &DateFormat{opts: opts, fields: fields}, nil
}

// ParseTimezone resolves a zone id. It accepts IANA names, "GMT"/"UTC" and
// fixed offsets such as "GMT+09:00". The empty string yields the host zone.
func ParseTimezone(id string) (*time.Location, error) {
	id = strings.TrimSpace(id)
	switch id {
	case "":
		return time.Local, nil
	case "GMT", "UTC", "Z":
		return time.UTC, nil
	}
	for _, base := range []string{"GMT", "UTC"} {
		if rest, ok := strings.CutPrefix(id, base); ok && (strings.HasPrefix(rest, "+") || strings.HasPrefix(rest, "-")) {
			offset, n, ok := scanOffset(rest)
			if !ok || n != len(rest) {
				break
			}
			return time.FixedZone(id, offset), nil
		}
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownTimezone, id, err)
	}
	return loc, nil
}

// Options returns the options the format was compiled from.
func (f *DateFormat) Options() DateOptions {
	return f.opts
}

// Pattern returns the source pattern.
func (f *DateFormat) Pattern() string {
	return f.opts.Pattern
}

// Location returns the zone the format reads and writes wall-clock fields in.
func (f *DateFormat) Location() *time.Location {
	return f.opts.Location
}

// Format renders t in the format's zone.
func (f *DateFormat) Format(t time.Time) string {
	t = t.In(f.opts.Location)

	var b strings.Builder
	for _, field := range f.fields {
		switch field.letter {
		case 0:
			b.WriteString(field.literal)
		case 'y':
			if field.width == 2 {
				b.WriteString(pad(t.Year()%100, 2))
			} else {
				b.WriteString(pad(t.Year(), field.width))
			}
		case 'M':
			switch {
			case field.width <= 2:
				b.WriteString(pad(int(t.Month()), field.width))
			case field.width == 3:
				b.WriteString(t.Month().String()[:3])
			default:
				b.WriteString(t.Month().String())
			}
		case 'd':
			b.WriteString(pad(t.Day(), field.width))
		case 'H':
			b.WriteString(pad(t.Hour(), field.width))
		case 'k':
			h := t.Hour()
			if h == 0 {
				h = 24
			}
			b.WriteString(pad(h, field.width))
		case 'h':
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			b.WriteString(pad(h, field.width))
		case 'K':
			b.WriteString(pad(t.Hour()%12, field.width))
		case 'm':
			b.WriteString(pad(t.Minute(), field.width))
		case 's':
			b.WriteString(pad(t.Second(), field.width))
		case 'S':
			b.WriteString(pad(t.Nanosecond()/int(time.Millisecond), field.width))
		case 'E':
			if field.width <= 3 {
				b.WriteString(t.Weekday().String()[:3])
			} else {
				b.WriteString(t.Weekday().String())
			}
		case 'a':
			if t.Hour() < 12 {
				b.WriteString("AM")
			} else {
				b.WriteString("PM")
			}
		case 'Z':
			b.WriteString(t.Format("-0700"))
		case 'X':
			switch field.width {
			case 1:
				b.WriteString(t.Format("Z07"))
			case 2:
				b.WriteString(t.Format("Z0700"))
			default:
				b.WriteString(t.Format("Z07:00"))
			}
		case 'z':
			b.WriteString(t.Format("MST"))
		}
	}
	return b.String()
}

type dateState struct {
	year, month, day     int
	hour, minute, second int
	millis               int
	hourLetter           rune
	pm                   int
	loc                  *time.Location
}

// Parse reads an instant from text. Fields absent from the pattern default to
// the epoch (1970-01-01 00:00:00).
func (f *DateFormat) Parse(text string) (time.Time, error) {
	st := dateState{year: 1970, month: 1, day: 1, pm: -1, loc: f.opts.Location}
	fail := func(offset int, reason string) (time.Time, error) {
		return time.Time{}, &ParseError{Text: text, Pattern: f.opts.Pattern, Offset: offset, Reason: reason}
	}

	i := 0
	for idx, field := range f.fields {
		rest := text[i:]
		switch {
		case field.letter == 0:
			if !strings.HasPrefix(rest, field.literal) {
				return fail(i, fmt.Sprintf("expected %q", field.literal))
			}
			i += len(field.literal)

		case field.numeric():
			limit := 0
			if idx+1 < len(f.fields) && f.fields[idx+1].numeric() {
				limit = field.width
			}
			n := 0
			for n < len(rest) && (limit == 0 || n < limit) && rest[n] >= '0' && rest[n] <= '9' {
				n++
			}
			if n == 0 {
				return fail(i, fmt.Sprintf("expected digits for %q", strings.Repeat(string(field.letter), field.width)))
			}
			v, err := strconv.Atoi(rest[:n])
			if err != nil {
				return fail(i, err.Error())
			}
			st.set(field, v, n)
			i += n

		case field.letter == 'M':
			m, n := matchName(rest, monthNames())
			if n == 0 {
				return fail(i, "expected month name")
			}
			st.month = m + 1
			i += n

		case field.letter == 'E':
			_, n := matchName(rest, weekdayNames())
			if n == 0 {
				return fail(i, "expected weekday name")
			}
			i += n

		case field.letter == 'a':
			switch {
			case len(rest) >= 2 && strings.EqualFold(rest[:2], "AM"):
				st.pm = 0
			case len(rest) >= 2 && strings.EqualFold(rest[:2], "PM"):
				st.pm = 1
			default:
				return fail(i, "expected AM or PM")
			}
			i += 2

		case field.letter == 'Z' || field.letter == 'X':
			if strings.HasPrefix(rest, "Z") {
				st.loc = time.UTC
				i++
				continue
			}
			offset, n, ok := scanOffset(rest)
			if !ok {
				return fail(i, "expected zone offset")
			}
			st.loc = time.FixedZone("", offset)
			i += n

		case field.letter == 'z':
			n := 0
			for n < len(rest) && unicode.IsLetter(rune(rest[n])) {
				n++
			}
			switch name := rest[:n]; {
			case name == "UTC" || name == "GMT":
				st.loc = time.UTC
			case n == 0 || name != time.Now().In(st.loc).Format("MST"):
				return fail(i, "unknown zone name")
			}
			i += n
		}
	}

	if !f.opts.Lenient && i != len(text) {
		return fail(i, "unexpected trailing text")
	}

	hour := st.resolveHour()
	if !f.opts.Lenient {
		if reason := st.validate(); reason != "" {
			return fail(0, reason)
		}
	}
	return time.Date(st.year, time.Month(st.month), st.day, hour, st.minute, st.second, st.millis*int(time.Millisecond), st.loc), nil
}

func (st *dateState) set(field dateField, v, digits int) {
	switch field.letter {
	case 'y':
		if field.width == 2 && digits == 2 {
			v = twoDigitYear(v)
		}
		st.year = v
	case 'M':
		st.month = v
	case 'd':
		st.day = v
	case 'H', 'k', 'h', 'K':
		st.hour = v
		st.hourLetter = field.letter
	case 'm':
		st.minute = v
	case 's':
		st.second = v
	case 'S':
		st.millis = v
	}
}

func (st *dateState) resolveHour() int {
	h := st.hour
	switch st.hourLetter {
	case 'k':
		if h == 24 {
			h = 0
		}
	case 'h', 'K':
		h %= 12
		if st.pm == 1 {
			h += 12
		}
	}
	return h
}

func (st *dateState) validate() string {
	switch {
	case st.month < 1 || st.month > 12:
		return fmt.Sprintf("month %d out of range", st.month)
	case st.day < 1 || st.day > daysIn(st.year, st.month):
		return fmt.Sprintf("day %d out of range for %04d-%02d", st.day, st.year, st.month)
	case st.minute > 59:
		return fmt.Sprintf("minute %d out of range", st.minute)
	case st.second > 59:
		return fmt.Sprintf("second %d out of range", st.second)
	case st.millis > 999:
		return fmt.Sprintf("millisecond %d out of range", st.millis)
	}
	switch st.hourLetter {
	case 'H':
		if st.hour > 23 {
			return fmt.Sprintf("hour %d out of range", st.hour)
		}
	case 'k':
		if st.hour < 1 || st.hour > 24 {
			return fmt.Sprintf("hour %d out of range", st.hour)
		}
	case 'h':
		if st.hour < 1 || st.hour > 12 {
			return fmt.Sprintf("hour %d out of range", st.hour)
		}
	case 'K':
		if st.hour > 11 {
			return fmt.Sprintf("hour %d out of range", st.hour)
		}
	}
	return ""
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// twoDigitYear places a two digit year within 80 years before and 20 years
// after the current year.
func twoDigitYear(v int) int {
	now := time.Now().Year()
	century := now - now%100
	year := century + v
	if year > now+20 {
		year -= 100
	}
	return year
}

func pad(v, width int) string {
	s := strconv.Itoa(v)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func monthNames() []string {
	names := make([]string, 0, 24)
	for m := time.January; m <= time.December; m++ {
		names = append(names, m.String())
	}
	return names
}

func weekdayNames() []string {
	names := make([]string, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		names = append(names, d.String())
	}
	return names
}

// matchName matches the full or three-letter form of one of names at the
// start of s, ignoring case. It returns the index and the matched length.
func matchName(s string, names []string) (int, int) {
	for i, name := range names {
		if len(s) >= len(name) && strings.EqualFold(s[:len(name)], name) {
			return i, len(name)
		}
	}
	for i, name := range names {
		if len(s) >= 3 && strings.EqualFold(s[:3], name[:3]) {
			return i, 3
		}
	}
	return 0, 0
}

// scanOffset reads +hh, +hhmm or +hh:mm and returns the offset in seconds.
func scanOffset(s string) (int, int, bool) {
	if len(s) < 3 || (s[0] != '+' && s[0] != '-') {
		return 0, 0, false
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	digits := func(at int) (int, bool) {
		if at+2 > len(s) || !isDigit(s[at]) || !isDigit(s[at+1]) {
			return 0, false
		}
		return int(s[at]-'0')*10 + int(s[at+1]-'0'), true
	}
	hh, ok := digits(1)
	if !ok {
		return 0, 0, false
	}
	n := 3
	mm := 0
	switch {
	case len(s) >= 6 && s[3] == ':':
		if v, ok := digits(4); ok {
			mm, n = v, 6
		}
	case len(s) >= 5:
		if v, ok := digits(3); ok {
			mm, n = v, 5
		}
	}
	return sign * (hh*3600 + mm*60), n, true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func parseDatePattern(pattern string) ([]dateField, error) {
	var fields []dateField
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			fields = append(fields, dateField{literal: lit.String()})
			lit.Reset()
		}
	}

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'':
			if i+1 < len(runes) && runes[i+1] == '\'' {
				lit.WriteRune('\'')
				i++
				continue
			}
			j := i + 1
			for ; j < len(runes); j++ {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						lit.WriteRune('\'')
						j++
						continue
					}
					break
				}
				lit.WriteRune(runes[j])
			}
			if j >= len(runes) {
				return nil, patternError(pattern, "unterminated quote")
			}
			i = j
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			if !strings.ContainsRune(dateLetters, r) {
				return nil, patternError(pattern, fmt.Sprintf("unsupported letter %q", r))
			}
			width := 1
			for i+1 < len(runes) && runes[i+1] == r {
				width++
				i++
			}
			flush()
			fields = append(fields, dateField{letter: r, width: width})
		default:
			lit.WriteRune(r)
		}
	}
	flush()
	return fields, nil
}
