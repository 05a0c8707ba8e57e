// Package normalize canonicalizes publication timestamps into one reference
// timezone and derives the content hash used for deduplication.
package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"go.uber.org/zap"
)

// DefaultTimezone is the reference timezone all timestamps are expressed in.
const DefaultTimezone = "Asia/Shanghai"

const dateLayout = "2006-01-02"

// layouts carrying an explicit offset or Z marker
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
}

// layouts without an offset; interpreted as UTC
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// Normalizer converts caller timestamps into the reference timezone.
type Normalizer struct {
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used for the "now" fallback.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a Normalizer for the named IANA timezone.
func New(timezone string, logger *zap.Logger, opts ...Option) (*Normalizer, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{loc: loc, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Location returns the reference timezone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Now returns the current time in the reference timezone.
func (n *Normalizer) Now() time.Time {
	return n.now().In(n.loc)
}

// Normalize returns the ISO-8601 string and epoch seconds for ts in the
// reference timezone. Missing or unparseable input falls back to now and
// is logged.
func (n *Normalizer) Normalize(ts domain.Timestamp) (string, int64) {
	t, err := n.Parse(ts)
	if err != nil {
		t = n.Now()
		n.logger.Warn("timestamp fallback to now",
			zap.String("raw", ts.Raw),
			zap.Error(err),
		)
	}
	return Format(t), t.Unix()
}

// Parse resolves ts strictly: missing or unparseable input is an error.
func (n *Normalizer) Parse(ts domain.Timestamp) (time.Time, error) {
	if !ts.Time.IsZero() {
		return ts.Time.In(n.loc), nil
	}
	return n.ParseText(ts.Raw)
}

// ParseText resolves raw timestamp text.
func (n *Normalizer) ParseText(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, domain.ErrTimeParse.Wrap(errEmpty)
	}

	if len(s) == len(dateLayout) {
		if t, err := time.ParseInLocation(dateLayout, s, n.loc); err == nil {
			return t, nil
		}
	}

	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(n.loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.In(n.loc), nil
		}
	}

	return time.Time{}, domain.ErrTimeParse.Wrap(fmt.Errorf("cannot parse %q", raw))
}

// Format renders t as ISO-8601 with its offset.
func Format(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ContentHash is the hex MD5 digest of title and body joined by a newline.
func ContentHash(title, body string) string {
	sum := md5.Sum([]byte(title + "\n" + body))
	return hex.EncodeToString(sum[:])
}

var errEmpty = errors.New("empty timestamp")
