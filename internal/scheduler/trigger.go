package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aristath/newsbell/internal/config"
)

// Trigger computes when a job is next due.
type Trigger interface {
	// Next returns the first due time strictly after after.
	Next(after time.Time) time.Time
	String() string
}

type dailyAt struct {
	hour, minute int
	schedule     *cron.SpecSchedule
}

// DailyAt fires once per calendar day at hour:minute in loc.
func DailyAt(hour, minute int, loc *time.Location) (Trigger, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	if loc == nil {
		loc = time.Local
	}

	parsed, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return nil, fmt.Errorf("failed to build daily schedule: %w", err)
	}
	spec := parsed.(*cron.SpecSchedule)
	spec.Location = loc

	return &dailyAt{hour: hour, minute: minute, schedule: spec}, nil
}

// ParseDailyAt parses "HH:MM" into a DailyAt trigger.
func ParseDailyAt(hhmm string, loc *time.Location) (Trigger, error) {
	hour, minute, err := config.ParseClock(hhmm)
	if err != nil {
		return nil, err
	}
	return DailyAt(hour, minute, loc)
}

func (d *dailyAt) Next(after time.Time) time.Time {
	return d.schedule.Next(after)
}

func (d *dailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", d.hour, d.minute, d.schedule.Location)
}

type every struct {
	schedule cron.ConstantDelaySchedule
}

// Every fires repeatedly, d after the previous run. Intervals are rounded
// down to whole seconds with a minimum of one second.
func Every(d time.Duration) Trigger {
	return &every{schedule: cron.Every(d)}
}

func (e *every) Next(after time.Time) time.Time {
	return after.Add(e.schedule.Delay)
}

func (e *every) String() string {
	return "every " + e.schedule.Delay.String()
}
