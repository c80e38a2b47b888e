package check

import (
	"fmt"
	"strings"
)

// Operator is a comparison applied as "actual <op> expected".
type Operator string

// Supported operators.
const (
	Less         Operator = "<"
	LessEqual    Operator = "<="
	Greater      Operator = ">"
	GreaterEqual Operator = ">="
)

// ParseOperator accepts the symbolic form (">=") or the long name
// ("GREATER_EQUAL"), in any letter case.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "<", "LESS", "LT":
		return Less, nil
	case "<=", "LESS_EQUAL", "LTE":
		return LessEqual, nil
	case ">", "GREATER", "GT":
		return Greater, nil
	case ">=", "GREATER_EQUAL", "GTE":
		return GreaterEqual, nil
	default:
		return "", fmt.Errorf("unknown operator %q: want < | <= | > | >=", s)
	}
}

// Threshold is a single comparison deciding whether a value is bad.
type Threshold struct {
	Operator Operator `json:"operator"`
	Expected float64  `json:"expected"`
}

// IsExceeded reports whether v violates the threshold.
func (t Threshold) IsExceeded(v float64) bool {
	switch t.Operator {
	case Less:
		return v < t.Expected
	case LessEqual:
		return v <= t.Expected
	case Greater:
		return v > t.Expected
	case GreaterEqual:
		return v >= t.Expected
	default:
		return false
	}
}

// String renders the threshold as "> 200".
func (t Threshold) String() string {
	return fmt.Sprintf("%s %g", t.Operator, t.Expected)
}

// IsAllExceeded reports whether every threshold in bucket is exceeded by v.
// An empty bucket is never exceeded.
func IsAllExceeded(bucket []Threshold, v float64) bool {
	if len(bucket) == 0 {
		return false
	}
	for _, t := range bucket {
		if !t.IsExceeded(v) {
			return false
		}
	}
	return true
}
