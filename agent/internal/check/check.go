package check

import (
	"regexp"
	"strings"

	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/pkg/types"
)

// Check is one threshold rule. Checks are built from configuration and are
// never modified afterwards; a reload replaces the whole set.
type Check struct {
	// ID is the slug of Name and the incident store key.
	ID   string
	Name string

	Application string

	// Target must match a series name in full.
	Target *regexp.Regexp

	Category metrics.Category
	Field    string

	Warn     []Threshold
	Error    []Threshold
	Critical []Threshold

	Active bool

	// AlertAfter is the number of consecutive non-OK evaluations required
	// before a new incident notifies. Values below 1 behave as 1.
	AlertAfter int
}

// AppliesTo reports whether the check is evaluated for application app.
func (c Check) AppliesTo(app string) bool {
	return c.Active && c.Application == app
}

// AlertThreshold returns AlertAfter clamped to at least 1.
func (c Check) AlertThreshold() int {
	if c.AlertAfter < 1 {
		return 1
	}
	return c.AlertAfter
}

// Bucket returns the thresholds configured for status s.
func (c Check) Bucket(s types.Status) []Threshold {
	switch s {
	case types.StatusWarn:
		return c.Warn
	case types.StatusError:
		return c.Error
	case types.StatusCritical:
		return c.Critical
	default:
		return nil
	}
}

// CompileTarget anchors pattern so that it must match a series name in full.
func CompileTarget(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + pattern + `)$`)
}

// Slug lowercases name and collapses every run of characters other than
// ASCII letters and digits into a single dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
