// Package spknum formats and parses SPK work-order numbers.
//
// An SPK is a four-digit month/year prefix ("MMYY") followed by the monthly
// sequence, zero-padded to a fixed width. A process uses exactly one width,
// chosen at startup; numbers of any other width are malformed.
//
//	0625 + 0007  ->  "06250007"   (Width 4)
//	0625 + 007   ->  "0625007"    (Width 3)
//
// The package is pure: no I/O, no clock other than the time value passed in.
package spknum

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// PrefixLen is the length of the MMYY prefix.
const PrefixLen = 4

// Supported sequence widths. DefaultWidth is the canonical one.
const (
	MinWidth     = 3
	MaxWidth     = 4
	DefaultWidth = 4
)

// ErrMalformed is returned by Parse for input that is not a well-formed SPK
// under the configured width.
var ErrMalformed = errors.New("malformed spk")

// Format carries the single sequence width used by a process.
type Format struct {
	Width int
}

// New returns a Format for width, or an error if width is unsupported.
func New(width int) (Format, error) {
	if width < MinWidth || width > MaxWidth {
		return Format{}, fmt.Errorf("spk sequence width must be between %d and %d, got %d", MinWidth, MaxWidth, width)
	}
	return Format{Width: width}, nil
}

// Prefix returns the MMYY key for t, using t's own location.
func Prefix(t time.Time) string {
	return fmt.Sprintf("%02d%02d", int(t.Month()), t.Year()%100)
}

// MaxSequence is the largest sequence representable at this width.
func (f Format) MaxSequence() int64 {
	max := int64(1)
	for i := 0; i < f.Width; i++ {
		max *= 10
	}
	return max - 1
}

// Fits reports whether seq can be rendered without exceeding the width.
func (f Format) Fits(seq int64) bool {
	return seq >= 1 && seq <= f.MaxSequence()
}

// Len is the full length of an SPK at this width.
func (f Format) Len() int { return PrefixLen + f.Width }

// Format renders the SPK for the month of t. It panics if seq <= 0; callers
// are expected to check Fits before formatting a counter value.
func (f Format) Format(t time.Time, seq int64) string {
	return f.Compose(Prefix(t), seq)
}

// Compose renders prefix + padded seq. It panics if seq <= 0.
func (f Format) Compose(prefix string, seq int64) string {
	if seq <= 0 {
		panic(fmt.Sprintf("spknum: sequence must be positive, got %d", seq))
	}
	return fmt.Sprintf("%s%0*d", prefix, f.Width, seq)
}

// Parse splits s into its prefix and sequence. It rejects anything that is
// not exactly PrefixLen+Width ASCII digits, a month outside 01..12, or a zero
// sequence.
func (f Format) Parse(s string) (prefix string, seq int64, err error) {
	if len(s) != f.Len() {
		return "", 0, ErrMalformed
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", 0, ErrMalformed
		}
	}
	month, _ := strconv.Atoi(s[:2])
	if month < 1 || month > 12 {
		return "", 0, ErrMalformed
	}
	seq, _ = strconv.ParseInt(s[PrefixLen:], 10, 64)
	if seq < 1 {
		return "", 0, ErrMalformed
	}
	return s[:PrefixLen], seq, nil
}

// Valid reports whether s parses under this format.
func (f Format) Valid(s string) bool {
	_, _, err := f.Parse(s)
	return err == nil
}
