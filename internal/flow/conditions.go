package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldLookup resolves a field name during condition evaluation. The engine
// backs it with the session's IntakeRecord plus a few virtual fields
// ("specialty").
type FieldLookup func(name string) (any, bool)

// Eval evaluates a prerequisite expression against collected fields.
//
// Grammar is deliberately small: either a bare field name (present check) or
// "field OP literal" with OP in ==, !=, >, >=, <, <=. Literals are quoted
// strings, true/false, or numbers. String comparison is case-insensitive;
// ordering operators require both sides to be numeric.
//
// A missing field evaluates to false, not an error: the prerequisite is
// simply not satisfied yet.
func Eval(expr string, lookup FieldLookup) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	field, op, lit, err := splitExpr(expr)
	if err != nil {
		return false, err
	}

	value, ok := lookup(field)
	if !ok {
		return false, nil
	}

	if op == "" {
		// Bare field: present check.
		return true, nil
	}

	// Numeric comparison when both sides parse as numbers.
	if lv, lok := toFloat(value); lok {
		if rv, rok := toFloat(lit); rok {
			return compareFloats(lv, op, rv)
		}
	}

	// Fall back to string semantics.
	ls := strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
	rs := strings.ToLower(strings.TrimSpace(lit))
	switch op {
	case "==":
		return ls == rs, nil
	case "!=":
		return ls != rs, nil
	default:
		return false, fmt.Errorf("operator %q requires numeric operands in %q", op, expr)
	}
}

// splitExpr breaks "field OP literal" apart. Operators are matched longest
// first so ">=" is not read as ">".
func splitExpr(expr string) (field, op, lit string, err error) {
	for _, candidate := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if idx := strings.Index(expr, candidate); idx >= 0 {
			field = strings.TrimSpace(expr[:idx])
			lit = strings.TrimSpace(expr[idx+len(candidate):])
			if field == "" || lit == "" {
				return "", "", "", fmt.Errorf("malformed condition %q", expr)
			}
			return field, candidate, unquote(lit), nil
		}
	}
	if strings.ContainsAny(expr, " \t") {
		return "", "", "", fmt.Errorf("malformed condition %q", expr)
	}
	return expr, "", "", nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		return 0, false
	default:
		return 0, false
	}
}

func compareFloats(l float64, op string, r float64) (bool, error) {
	switch op {
	case "==":
		return l == r, nil
	case "!=":
		return l != r, nil
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	case "<":
		return l < r, nil
	case "<=":
		return l <= r, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}
