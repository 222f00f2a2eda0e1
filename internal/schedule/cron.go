package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Standard 5-field cron: minute hour day-of-month month day-of-week.
// No seconds field and no descriptors; schedules stay portable across
// crontab tooling.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses expr, wrapping failures in ErrInvalidCron so callers
// can map them to a user-facing validation error.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCron, err)
	}
	return sched, nil
}

// NextRun returns the first firing of expr strictly after the given time.
func NextRun(expr string, after time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// ValidateCron reports whether expr is an acceptable schedule expression.
func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}
