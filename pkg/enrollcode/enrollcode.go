// Package enrollcode builds and parses the 7-digit enrollment code AASNNNN:
// two-digit year (year-2000), one-digit term (1 or 2) and a zero padded
// sequence number in [1,9999].
package enrollcode

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
)

const (
	// Length is the exact number of digits of an enrollment code.
	Length = 7

	MinYear     = 2000
	MaxYear     = 2099
	MinSequence = 1
	MaxSequence = 9999
)

// Parts is the decoded form of an enrollment code.
type Parts struct {
	Year     int `json:"year"`
	Term     int `json:"term"`
	Sequence int `json:"sequence"`
}

// Generate formats year, term and sequence as an enrollment code.
func Generate(year, term, sequence int) (string, error) {
	if year < MinYear || year > MaxYear {
		return "", invalid(fmt.Sprintf("year must be between %d and %d", MinYear, MaxYear))
	}
	if term != 1 && term != 2 {
		return "", invalid("term must be 1 or 2")
	}
	if sequence < MinSequence || sequence > MaxSequence {
		return "", invalid(fmt.Sprintf("sequence must be between %d and %d", MinSequence, MaxSequence))
	}
	return fmt.Sprintf("%02d%d%04d", year%100, term, sequence), nil
}

// TermOf returns 1 for January to June and 2 otherwise.
func TermOf(t time.Time) int {
	if t.Month() <= time.June {
		return 1
	}
	return 2
}

// GenerateFor builds a code for the year and term containing t.
func GenerateFor(t time.Time, sequence int) (string, error) {
	return Generate(t.Year(), TermOf(t), sequence)
}

// GenerateForToday builds a code for the current year and term.
func GenerateForToday(sequence int) (string, error) {
	return GenerateFor(time.Now(), sequence)
}

// Prefix returns the three leading digits shared by every code of a year and term.
func Prefix(year, term int) string {
	return fmt.Sprintf("%02d%d", year%100, term)
}

// Parse decodes code, failing with INVALID_FORMAT when it is not a valid enrollment code.
func Parse(code string) (Parts, error) {
	if len(code) != Length {
		return Parts{}, invalid(fmt.Sprintf("expected %d digits", Length))
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return Parts{}, invalid("code must contain only digits")
		}
	}
	p := Parts{
		Year:     MinYear + digits(code[0:2]),
		Term:     digits(code[2:3]),
		Sequence: digits(code[3:7]),
	}
	if p.Term != 1 && p.Term != 2 {
		return Parts{}, invalid("term must be 1 or 2")
	}
	if p.Sequence < MinSequence || p.Sequence > MaxSequence {
		return Parts{}, invalid("sequence must be between 0001 and 9999")
	}
	return p, nil
}

// Valid reports whether code parses.
func Valid(code string) bool {
	_, err := Parse(code)
	return err == nil
}

// Format renders code as "YYYY.T - #NNNN".
func Format(code string) (string, error) {
	p, err := Parse(code)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d - #%04d", p.Year, p.Term, p.Sequence), nil
}

// SequenceSource supplies sequence numbers for a year and term.
type SequenceSource interface {
	Next(ctx context.Context, year, term int) (int, error)
}

// ClockSequence derives the sequence from the wall clock in milliseconds.
// Codes issued within the same millisecond-modulo window collide; the store's
// unique constraint rejects the second insert.
type ClockSequence struct {
	Now func() time.Time
}

// Next implements SequenceSource.
func (c ClockSequence) Next(ctx context.Context, year, term int) (int, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return int(now().UnixMilli()%MaxSequence) + 1, nil
}

func digits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

func invalid(reason string) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrInvalidFormat, "invalid enrollment code: "+reason, map[string]interface{}{
		"expected": "AASNNNN",
	})
}
