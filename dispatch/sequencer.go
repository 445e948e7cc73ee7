package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/linesmerrill/camp-cad-api/databases"
)

var callNumberPattern = regexp.MustCompile(`^(\d{4})-(\d+)$`)

// Sequencer hands out call numbers of the form "<year>-<n>". The first draw
// of a year raises the counter to the highest number already stored, every
// draw after that is an atomic increment in the store.
type Sequencer struct {
	calls    databases.CallDatabase
	counters databases.CounterDatabase
	now      func() time.Time

	mu     sync.Mutex
	seeded map[int]bool
}

// NewSequencer returns a sequencer backed by the calls and counters stores
func NewSequencer(calls databases.CallDatabase, counters databases.CounterDatabase) *Sequencer {
	return &Sequencer{
		calls:    calls,
		counters: counters,
		now:      time.Now,
		seeded:   map[int]bool{},
	}
}

// WithClock replaces the clock used to pick the year
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.now = now
	return s
}

// Year is the calendar year the next number will belong to
func (s *Sequencer) Year() int {
	return s.now().Year()
}

// Next returns the next unused call number for the current year
func (s *Sequencer) Next(ctx context.Context) (string, error) {
	year := s.Year()
	if err := s.seed(ctx, year); err != nil {
		return "", err
	}
	n, err := s.counters.Next(ctx, counterKey(year))
	if err != nil {
		return "", persistenceFailure(ctx, "next call number", err, "year", year)
	}
	return FormatCallNumber(year, n), nil
}

// Reset forgets that year was seeded, so the next draw re-reads stored numbers
func (s *Sequencer) Reset(year int) {
	s.mu.Lock()
	delete(s.seeded, year)
	s.mu.Unlock()
}

func (s *Sequencer) seed(ctx context.Context, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded[year] {
		return nil
	}

	numbers, err := s.calls.CallNumbersWithPrefix(ctx, fmt.Sprintf("%d-", year))
	if err != nil {
		return persistenceFailure(ctx, "list call numbers", err, "year", year)
	}
	var max int64
	for _, number := range numbers {
		y, n, ok := ParseCallNumber(number)
		if ok && y == year && n > max {
			max = n
		}
	}
	if err := s.counters.Seed(ctx, counterKey(year), max); err != nil {
		return persistenceFailure(ctx, "seed call counter", err, "year", year)
	}
	s.seeded[year] = true
	return nil
}

// FormatCallNumber renders a call number
func FormatCallNumber(year int, n int64) string {
	return fmt.Sprintf("%d-%d", year, n)
}

// ParseCallNumber splits a call number into year and incident number.
// Anything not shaped like "<year>-<positive integer>" is rejected.
func ParseCallNumber(number string) (int, int64, bool) {
	m := callNumberPattern.FindStringSubmatch(number)
	if m == nil {
		return 0, 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || n <= 0 {
		return 0, 0, false
	}
	return year, n, true
}

func counterKey(year int) string {
	return fmt.Sprintf("calls-%d", year)
}
