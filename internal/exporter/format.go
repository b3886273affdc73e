package exporter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// formatFloat formats a float64 with prec decimals; non-finite values are
// written as empty cells
func formatFloat(f float64, prec int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// formatInt formats an int64 value for CSV output
func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// formatTime writes RFC3339 or an empty cell for the zero time
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// pct converts a fraction to percent for display
func pct(f float64) float64 {
	return f * 100
}

// cellString renders a table cell for CSV output
func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatFloat(x, 6)
	case int:
		return formatInt(int64(x))
	case int64:
		return formatInt(x)
	case bool:
		return formatBool(x)
	case time.Time:
		return formatTime(x)
	case []string:
		return strings.Join(x, ";")
	default:
		return fmt.Sprint(x)
	}
}

// cellValue converts a cell for a spreadsheet, keeping numbers numeric
func cellValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return x
	case time.Time, []string:
		return cellString(x)
	default:
		return v
	}
}
