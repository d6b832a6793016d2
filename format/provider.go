// Package format compiles number and date patterns into parsers and
// formatters. Number patterns follow the DecimalFormat grammar (grouping,
// fixed and optional digits, percent, currency, negative subpatterns) with
// locale separators taken from golang.org/x/text; date patterns follow the
// SimpleDateFormat letters with zone and leniency control.
package format

import (
	"sync"
	"time"

	"golang.org/x/text/language"
)

// Provider hands out compiled formats.
type Provider interface {
	Number(NumberOptions) (*NumberFormat, error)
	Date(DateOptions) (*DateFormat, error)
}

type numberKey struct {
	pattern  string
	locale   language.Tag
	currency string
	rounding Rounding
	lenient  bool
}

type dateKey struct {
	pattern string
	loc     *time.Location
	lenient bool
}

// Cache is a Provider that compiles each distinct option set once. It is safe
// for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	numbers map[numberKey]*NumberFormat
	dates   map[dateKey]*DateFormat
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		numbers: make(map[numberKey]*NumberFormat),
		dates:   make(map[dateKey]*DateFormat),
	}
}

// Number returns the compiled number format for opts.
func (c *Cache) Number(opts NumberOptions) (*NumberFormat, error) {
	if opts.Locale == language.Und {
		opts.Locale = DefaultLocale
	}
	key := numberKey{opts.Pattern, opts.Locale, opts.Currency, opts.Rounding, opts.Lenient}

	c.mu.RLock()
	f, ok := c.numbers[key]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	f, err := NewNumberFormat(opts)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.numbers[key] = f
	c.mu.Unlock()
	return f, nil
}

// Date returns the compiled date format for opts.
func (c *Cache) Date(opts DateOptions) (*DateFormat, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	key := dateKey{opts.Pattern, opts.Location, opts.Lenient}

	c.mu.RLock()
	f, ok := c.dates[key]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	f, err := NewDateFormat(opts)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.dates[key] = f
	c.mu.Unlock()
	return f, nil
}

// Len returns the number of compiled formats held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.numbers) + len(c.dates)
}

var shared = NewCache()

// Default returns the process-wide Cache.
func Default() *Cache {
	return shared
}
