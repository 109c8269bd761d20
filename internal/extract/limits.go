package extract

import (
	"io"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// Limits bounds the resources a single extraction may consume.
type Limits struct {
	MaxEntries           int
	MaxTotalUncompressed int64
	MaxEntryUncompressed int64
	MaxRatio             float64
	RatioWarmup          int64
}

// DefaultLimits returns the resource caps mandated by spec §4.5.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:           10_000,
		MaxTotalUncompressed: 10 * 1024 * 1024 * 1024,
		MaxEntryUncompressed: 1 * 1024 * 1024 * 1024,
		MaxRatio:             100,
		RatioWarmup:          1 * 1024 * 1024,
	}
}

// budget tracks compressed-bytes-read vs uncompressed-bytes-written
// across an entire extraction, enforcing the decompression-ratio cap
// once past the warm-up threshold.
type budget struct {
	limits     Limits
	entries    int
	compressed int64
	total      int64
}

func newBudget(limits Limits) *budget {
	return &budget{limits: limits}
}

// Total returns the cumulative uncompressed bytes written so far.
func (b *budget) Total() int64 {
	return b.total
}

func (b *budget) addEntry() error {
	b.entries++
	if b.entries > b.limits.MaxEntries {
		return errkind.New(errkind.LimitExceeded, "entry count")
	}
	return nil
}

func (b *budget) addCompressed(n int64) {
	b.compressed += n
}

func (b *budget) addUncompressed(entryTotal, n int64) error {
	b.total += n
	if entryTotal > b.limits.MaxEntryUncompressed {
		return errkind.New(errkind.LimitExceeded, "per-entry uncompressed size")
	}
	if b.total > b.limits.MaxTotalUncompressed {
		return errkind.New(errkind.LimitExceeded, "total uncompressed size")
	}
	if b.total > b.limits.RatioWarmup && b.compressed > 0 {
		ratio := float64(b.total) / float64(b.compressed)
		if ratio > b.limits.MaxRatio {
			return errkind.New(errkind.LimitExceeded, "decompression ratio")
		}
	}
	return nil
}

// countingReader wraps a reader and feeds every read into a budget's
// compressed-bytes counter.
type countingReader struct {
	r io.Reader
	b *budget
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.b.addCompressed(int64(n))
	}
	return n, err
}
