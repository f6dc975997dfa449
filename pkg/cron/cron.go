package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autobot/fleet/pkg/types"
	"github.com/hashicorp/cronexpr"
)

// Validate reports whether expr is a well-formed 5-field cron expression
// (minute, hour, day-of-month, month, day-of-week).
func Validate(expr string) bool {
	if len(strings.Fields(expr)) != 5 {
		return false
	}
	_, err := cronexpr.Parse(expr)
	return err == nil
}

// Next returns the next firing strictly after base. A zero time with no
// error means the expression has no future occurrence.
func Next(expr string, base time.Time) (time.Time, error) {
	if !Validate(expr) {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, types.ErrValidation)
	}
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, types.ErrValidation)
	}
	return parsed.Next(base), nil
}

// NextN returns up to n upcoming firings strictly after base.
func NextN(expr string, base time.Time, n int) ([]time.Time, error) {
	if !Validate(expr) {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, types.ErrValidation)
	}
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, types.ErrValidation)
	}

	runs := parsed.NextN(base, uint(n))
	var out []time.Time
	for _, run := range runs {
		if run.IsZero() {
			break
		}
		out = append(out, run)
	}
	return out, nil
}

var weekdays = map[string]string{
	"0": "Sunday", "1": "Monday", "2": "Tuesday", "3": "Wednesday",
	"4": "Thursday", "5": "Friday", "6": "Saturday", "7": "Sunday",
}

// Describe renders a human-readable summary of a cron expression. Common
// patterns get friendly shortcuts; everything else falls back to a generic
// construction.
func Describe(expr string) string {
	if !Validate(expr) {
		return "Invalid cron expression"
	}

	fields := strings.Fields(expr)
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	allRest := dom == "*" && month == "*" && dow == "*"

	switch {
	case minute == "*" && hour == "*" && allRest:
		return "Every minute"

	case strings.HasPrefix(minute, "*/") && hour == "*" && allRest:
		return fmt.Sprintf("Every %s minutes", minute[2:])

	case minute == "0" && hour == "*" && allRest:
		return "Every hour"

	case minute == "0" && strings.HasPrefix(hour, "*/") && allRest:
		return fmt.Sprintf("Every %s hours", hour[2:])

	case isNumber(minute) && isNumber(hour) && allRest:
		return fmt.Sprintf("Every day at %s", clockTime(hour, minute))

	case isNumber(minute) && isNumber(hour) && dom == "*" && month == "*" && weekdays[dow] != "":
		return fmt.Sprintf("Every %s at %s", weekdays[dow], clockTime(hour, minute))

	case isNumber(minute) && isNumber(hour) && isNumber(dom) && month == "*" && dow == "*":
		return fmt.Sprintf("Monthly on day %s at %s", dom, clockTime(hour, minute))
	}

	// Generic fallback
	var b strings.Builder
	b.WriteString(fmt.Sprintf("At minute %s", minute))
	if hour != "*" {
		b.WriteString(fmt.Sprintf(" past hour %s", hour))
	}
	if dom != "*" {
		b.WriteString(fmt.Sprintf(" on day-of-month %s", dom))
	}
	if month != "*" {
		b.WriteString(fmt.Sprintf(" in month %s", month))
	}
	if dow != "*" {
		b.WriteString(fmt.Sprintf(" on day-of-week %s", dow))
	}
	return b.String()
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// clockTime renders "14"/"30" as "2:30 PM".
func clockTime(hour, minute string) string {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)

	suffix := "AM"
	display := h
	switch {
	case h == 0:
		display = 12
	case h == 12:
		suffix = "PM"
	case h > 12:
		display = h - 12
		suffix = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", display, m, suffix)
}
