package alerts

import (
	"strconv"
	"strings"

	"github.com/portwatch/portwatch/server/internal/status"
)

// evalCondition evaluates a rule condition against one portfolio status.
//
// Supported expressions (field operator value):
//
//	hours_since_activity >= 4
//	band == 4h+
//	band != updated
//	locked == true
//	checked == false
//	being_logged == true
//
// A portfolio with no issues has infinite hours_since_activity, so every ">"
// or ">=" threshold fires for it. Returns (fires, triggering value); an
// expression that cannot be parsed never fires.
func evalCondition(cond string, r status.Result) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "band":
		return compareString(string(r.Band), op, rhs), 0

	case "locked", "checked", "being_logged":
		want, err := strconv.ParseBool(rhs)
		if err != nil {
			return false, 0
		}
		v := boolField(field, r)
		return compareString(strconv.FormatBool(v), op, strconv.FormatBool(want)), 0

	case "hours_since_activity":
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		if r.HoursSinceActivity == nil {
			return op == ">" || op == ">=" || op == "!=", -1
		}
		v := float64(*r.HoursSinceActivity)
		return compareFloat(v, op, threshold), v

	default:
		return false, 0
	}
}

func boolField(field string, r status.Result) bool {
	switch field {
	case "locked":
		return r.Locked
	case "checked":
		return r.AllSitesChecked
	default:
		return r.IsBeingLogged
	}
}

func compareString(v, op, want string) bool {
	switch op {
	case "==":
		return v == want
	case "!=":
		return v != want
	default:
		return false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
