package batch

import (
	"fmt"
	"strings"
	"time"
)

// Cutoff is a UTC wall clock time at which the open batch is rotated.
type Cutoff struct {
	Hour   int
	Minute int
}

// ParseCutoff reads "HH:MM". An empty string means no cutoff.
func ParseCutoff(s string) (*Cutoff, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return nil, fmt.Errorf("invalid cutoff [%v]: %w", s, err)
	}
	return &Cutoff{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next is the first cutoff strictly after t.
func (c Cutoff) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (c Cutoff) String() string {
	return fmt.Sprintf("%02d:%02d UTC", c.Hour, c.Minute)
}

// policy decides when the open batch is complete.
type policy struct {
	deadline time.Time // zero when there is no cutoff
	maxRows  int       // 0 when rows are unlimited
}

func newPolicy(cutoff *Cutoff, maxRows int, opened time.Time) policy {
	p := policy{maxRows: maxRows}
	if cutoff != nil {
		p.deadline = cutoff.Next(opened)
	}
	return p
}

func (p policy) rowsReached(rows int) bool {
	return p.maxRows > 0 && rows >= p.maxRows
}

func (p policy) cutoffReached(now time.Time) bool {
	return !p.deadline.IsZero() && !now.Before(p.deadline)
}
