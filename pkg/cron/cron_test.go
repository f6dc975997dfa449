package cron

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "every minute", expr: "* * * * *", want: true},
		{name: "daily at 2am", expr: "0 2 * * *", want: true},
		{name: "every 5 minutes", expr: "*/5 * * * *", want: true},
		{name: "ranges and lists", expr: "0 9-17 * * 1,3,5", want: true},
		{name: "empty", expr: "", want: false},
		{name: "too few fields", expr: "* * * *", want: false},
		{name: "too many fields", expr: "* * * * * *", want: false},
		{name: "bad minute", expr: "61 * * * *", want: false},
		{name: "bad weekday", expr: "* * * * 9", want: false},
		{name: "garbage", expr: "not a cron", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.expr); got != tt.want {
				t.Errorf("Validate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestNextIsStrictlyAfterBase(t *testing.T) {
	base := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)

	// Base sits exactly on a firing; the next run must be the following day.
	next, err := Next("0 2 * * *", base)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !next.After(base) {
		t.Errorf("Next() = %v, want strictly after %v", next, base)
	}
	want := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next() = %v, want %v", next, want)
	}
}

func TestNextMatchesFields(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 3, 30, 0, time.UTC)

	next, err := Next("*/5 * * * *", base)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next.Minute()%5 != 0 {
		t.Errorf("Next() minute = %d, want multiple of 5", next.Minute())
	}
	if !next.After(base) {
		t.Errorf("Next() = %v not after base %v", next, base)
	}
}

func TestNextInvalidExpression(t *testing.T) {
	if _, err := Next("bogus", time.Now()); err == nil {
		t.Error("Next() with invalid expression should error")
	}
}

func TestNextN(t *testing.T) {
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	runs, err := NextN("*/5 * * * *", base, 5)
	if err != nil {
		t.Fatalf("NextN() error = %v", err)
	}
	if len(runs) != 5 {
		t.Fatalf("NextN() returned %d runs, want 5", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if diff := runs[i].Sub(runs[i-1]); diff != 5*time.Minute {
			t.Errorf("gap between run %d and %d = %v, want 5m", i-1, i, diff)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{expr: "* * * * *", want: "Every minute"},
		{expr: "*/5 * * * *", want: "Every 5 minutes"},
		{expr: "0 * * * *", want: "Every hour"},
		{expr: "0 */4 * * *", want: "Every 4 hours"},
		{expr: "0 2 * * *", want: "Every day at 2:00 AM"},
		{expr: "30 14 * * *", want: "Every day at 2:30 PM"},
		{expr: "0 0 * * *", want: "Every day at 12:00 AM"},
		{expr: "0 12 * * *", want: "Every day at 12:00 PM"},
		{expr: "0 9 * * 1", want: "Every Monday at 9:00 AM"},
		{expr: "0 3 15 * *", want: "Monthly on day 15 at 3:00 AM"},
		{expr: "not valid", want: "Invalid cron expression"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := Describe(tt.expr); got != tt.want {
				t.Errorf("Describe(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestDescribeGenericFallback(t *testing.T) {
	got := Describe("15 6 1 3 *")
	if got == "" || got == "Invalid cron expression" {
		t.Errorf("Describe() fallback = %q, want generic construction", got)
	}
}
