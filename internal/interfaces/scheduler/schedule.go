package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleTime represents a specific time of day when the scheduler should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Trigger decides whether an entry fires at a given minute.
type Trigger interface {
	Matches(t time.Time) bool
	String() string
}

// DailyTrigger fires every day at each of its times.
type DailyTrigger struct {
	Times []ScheduleTime
}

// ParseDailyTrigger parses a list of HH:MM times.
func ParseDailyTrigger(times []string) (DailyTrigger, error) {
	trigger := DailyTrigger{Times: make([]ScheduleTime, 0, len(times))}
	for _, timeStr := range times {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return DailyTrigger{}, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		trigger.Times = append(trigger.Times, st)
	}
	if len(trigger.Times) == 0 {
		return DailyTrigger{}, fmt.Errorf("at least one schedule time is required")
	}
	return trigger, nil
}

func (d DailyTrigger) Matches(t time.Time) bool {
	for _, st := range d.Times {
		if t.Hour() == st.Hour && t.Minute() == st.Minute {
			return true
		}
	}
	return false
}

func (d DailyTrigger) String() string {
	parts := make([]string, len(d.Times))
	for i, st := range d.Times {
		parts[i] = st.String()
	}
	return "daily at " + strings.Join(parts, ",")
}

// MonthlyTrigger fires once a month. Day 0 means the last day of the month;
// days past the end of a short month fire on its last day.
type MonthlyTrigger struct {
	Day int
	At  ScheduleTime
}

// ParseMonthlyTrigger parses "L@HH:MM" (last day) or "DD@HH:MM".
func ParseMonthlyTrigger(s string) (MonthlyTrigger, error) {
	dayStr, timeStr, ok := strings.Cut(s, "@")
	if !ok {
		return MonthlyTrigger{}, fmt.Errorf("invalid monthly schedule %q (expected DD@HH:MM or L@HH:MM)", s)
	}

	at, err := ParseScheduleTime(timeStr)
	if err != nil {
		return MonthlyTrigger{}, err
	}

	if strings.EqualFold(dayStr, "L") {
		return MonthlyTrigger{Day: 0, At: at}, nil
	}

	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return MonthlyTrigger{}, fmt.Errorf("invalid day %q: %w", dayStr, err)
	}
	if day < 1 || day > 31 {
		return MonthlyTrigger{}, fmt.Errorf("invalid day: %d (must be 1-31 or L)", day)
	}
	return MonthlyTrigger{Day: day, At: at}, nil
}

func (m MonthlyTrigger) Matches(t time.Time) bool {
	if t.Hour() != m.At.Hour || t.Minute() != m.At.Minute {
		return false
	}
	last := lastDayOfMonth(t)
	day := m.Day
	if day == 0 || day > last {
		day = last
	}
	return t.Day() == day
}

func (m MonthlyTrigger) String() string {
	if m.Day == 0 {
		return "monthly on the last day at " + m.At.String()
	}
	return fmt.Sprintf("monthly on day %d at %s", m.Day, m.At)
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
