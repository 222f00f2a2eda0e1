package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseCron_Valid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every minute", "* * * * *"},
		{"hourly", "0 * * * *"},
		{"nightly backup window", "0 3 * * *"},
		{"weekly on Sunday", "0 0 * * 0"},
		{"first of the month", "0 0 1 * *"},
		{"every 5 minutes", "*/5 * * * *"},
		{"weekday mornings", "0 9 * * 1-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCron(tt.expr); err != nil {
				t.Errorf("ParseCron(%q) error = %v, want nil", tt.expr, err)
			}
		})
	}
}

func TestParseCron_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"too few fields", "* * *"},
		{"seconds field rejected", "* * * * * *"},
		{"minute out of range", "60 * * * *"},
		{"hour out of range", "* 25 * * *"},
		{"day out of range", "* * 32 * *"},
		{"month out of range", "* * * 13 *"},
		{"weekday out of range", "* * * * 8"},
		{"garbage", "whenever feels right"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if err == nil {
				t.Fatalf("ParseCron(%q) error = nil, want error", tt.expr)
			}
			if !errors.Is(err, ErrInvalidCron) {
				t.Errorf("ParseCron(%q) error = %v, want ErrInvalidCron", tt.expr, err)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{"next minute", "* * * * *", time.Date(2026, 8, 15, 10, 31, 0, 0, time.UTC)},
		{"top of next hour", "0 * * * *", time.Date(2026, 8, 15, 11, 0, 0, 0, time.UTC)},
		{"next midnight", "0 0 * * *", time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextRun(tt.expr, now)
			if err != nil {
				t.Fatalf("NextRun(%q) error = %v", tt.expr, err)
			}
			if !next.Equal(tt.want) {
				t.Errorf("NextRun(%q, %v) = %v, want %v", tt.expr, now, next, tt.want)
			}
		})
	}
}

func TestNextRun_InvalidCron(t *testing.T) {
	if _, err := NextRun("invalid cron", time.Now()); !errors.Is(err, ErrInvalidCron) {
		t.Errorf("NextRun error = %v, want ErrInvalidCron", err)
	}
}

func TestValidateCron(t *testing.T) {
	if err := ValidateCron("0 0 * * *"); err != nil {
		t.Errorf("ValidateCron rejected a valid expression: %v", err)
	}
	if err := ValidateCron("invalid"); err == nil {
		t.Error("ValidateCron accepted garbage")
	}
}
