package check

import "testing"

func TestThreshold_IsExceeded(t *testing.T) {
	tests := []struct {
		op       Operator
		expected float64
		v        float64
		want     bool
	}{
		{Less, 10, 9, true},
		{Less, 10, 10, false},
		{LessEqual, 10, 10, true},
		{LessEqual, 10, 11, false},
		{Greater, 200, 250, true},
		{Greater, 200, 200, false},
		{GreaterEqual, 200, 200, true},
		{GreaterEqual, 200, 199.9, false},
		{Operator("=="), 1, 1, false},
	}
	for _, tc := range tests {
		th := Threshold{Operator: tc.op, Expected: tc.expected}
		if got := th.IsExceeded(tc.v); got != tc.want {
			t.Errorf("%s IsExceeded(%v): got %v, want %v", th, tc.v, got, tc.want)
		}
	}
}

func TestIsAllExceeded_AndReduce(t *testing.T) {
	band := []Threshold{{Greater, 10}, {Less, 20}}

	tests := []struct {
		v    float64
		want bool
	}{
		{15, true},  // both exceeded
		{5, false},  // only < 20
		{25, false}, // only > 10
	}
	for _, tc := range tests {
		got := IsAllExceeded(band, tc.v)
		want := band[0].IsExceeded(tc.v) && band[1].IsExceeded(tc.v)
		if got != tc.want || got != want {
			t.Errorf("IsAllExceeded(%v): got %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestIsAllExceeded_EmptyBucketNeverTriggers(t *testing.T) {
	for _, v := range []float64{-1e9, 0, 1e9} {
		if IsAllExceeded(nil, v) {
			t.Errorf("IsAllExceeded(nil, %v): got true, want false", v)
		}
		if IsAllExceeded([]Threshold{}, v) {
			t.Errorf("IsAllExceeded([], %v): got true, want false", v)
		}
	}
}

func TestParseOperator(t *testing.T) {
	tests := map[string]Operator{
		"<":             Less,
		"less_equal":    LessEqual,
		"GREATER":       Greater,
		">=":            GreaterEqual,
		"gte":           GreaterEqual,
		" LESS ":        Less,
		"GREATER_EQUAL": GreaterEqual,
	}
	for in, want := range tests {
		got, err := ParseOperator(in)
		if err != nil {
			t.Errorf("ParseOperator(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseOperator(%q): got %q, want %q", in, got, want)
		}
	}
	if _, err := ParseOperator("=="); err == nil {
		t.Error("ParseOperator(==): expected error")
	}
}
