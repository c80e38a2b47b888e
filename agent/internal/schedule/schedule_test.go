package schedule

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 30, 0, time.UTC)
	cases := []struct {
		spec     string
		wantStr  string
		wantNext time.Time
		kick     bool
	}{
		{"", "1m0s", base.Add(time.Minute), true},
		{"30s", "30s", base.Add(30 * time.Second), true},
		{"*/5 * * * *", "*/5 * * * *", time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), false},
		{"@hourly", "@hourly", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		s, err := Parse(tc.spec)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", tc.spec, err)
			continue
		}
		if s.String() != tc.wantStr {
			t.Errorf("Parse(%q).String(): got %q, want %q", tc.spec, s.String(), tc.wantStr)
		}
		if got := s.Next(base); !got.Equal(tc.wantNext) {
			t.Errorf("Parse(%q).Next: got %v, want %v", tc.spec, got, tc.wantNext)
		}
		if s.KickOnStart() != tc.kick {
			t.Errorf("Parse(%q).KickOnStart: got %v, want %v", tc.spec, s.KickOnStart(), tc.kick)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, spec := range []string{"-5s", "0s", "every minute", "* * *"} {
		if _, err := Parse(spec); err == nil {
			t.Errorf("Parse(%q): expected error", spec)
		}
	}
}
