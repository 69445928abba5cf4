// Package analytics derives summary statistics from a todo collection.
package analytics

import (
	"fmt"
	"math"
	"time"

	"kaaj/internal/models"
)

type TimeRange string

const (
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
)

func ParseTimeRange(s string) (TimeRange, error) {
	switch r := TimeRange(s); r {
	case RangeWeek, RangeMonth, RangeYear:
		return r, nil
	case "":
		return RangeWeek, nil
	}
	return "", fmt.Errorf("unknown time range %q", s)
}

// start returns the beginning of the period ending at end.
func (r TimeRange) start(end time.Time) time.Time {
	switch r {
	case RangeMonth:
		return end.AddDate(0, -1, 0)
	case RangeYear:
		return end.AddDate(-1, 0, 0)
	default:
		return end.AddDate(0, 0, -7)
	}
}

// Buckets is the number of daily buckets charted for the range.
func (r TimeRange) Buckets() int {
	if r == RangeWeek {
		return 7
	}
	return 30
}

type Trend struct {
	Percent  int    `json:"percent"`
	Text     string `json:"text"`
	Positive bool   `json:"positive"`
}

type Counts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Remaining  int `json:"remaining"`
}

type PriorityDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Daily holds one value per day, oldest first.
type Daily struct {
	Days      []time.Time `json:"days"`
	Total     []int       `json:"total"`
	Completed []int       `json:"completed"`
	New       []int       `json:"new"`
}

type Report struct {
	Range          TimeRange            `json:"range"`
	Start          time.Time            `json:"start"`
	End            time.Time            `json:"end"`
	Counts         Counts               `json:"counts"`
	CompletionRate int                  `json:"completion_rate"`
	Priorities     PriorityDistribution `json:"priorities"`
	Daily          Daily                `json:"daily"`
	Trends         Trends               `json:"trends"`
}

type Trends struct {
	Total          Trend `json:"total"`
	Completed      Trend `json:"completed"`
	Remaining      Trend `json:"remaining"`
	CompletionRate Trend `json:"completion_rate"`
}

// Compute reports on the todos created within r of now and compares them
// with the period before.
func Compute(todos []models.Todo, r TimeRange, now time.Time) Report {
	end := now
	start := r.start(end)
	prevStart := r.start(start)

	rep := Report{Range: r, Start: start, End: end}
	var prev Counts
	for _, t := range todos {
		switch {
		case !t.CreatedAt.Before(start) && !t.CreatedAt.After(end):
			rep.Counts.add(t)
			switch t.Priority {
			case models.PriorityHigh:
				rep.Priorities.High++
			case models.PriorityMedium:
				rep.Priorities.Medium++
			case models.PriorityLow:
				rep.Priorities.Low++
			}
		case !t.CreatedAt.Before(prevStart) && t.CreatedAt.Before(start):
			prev.add(t)
		}
	}
	rep.CompletionRate = percent(rep.Counts.Completed, rep.Counts.Total)
	rep.Daily = daily(todos, start, end, r.Buckets())

	prevRate := 0.0
	if prev.Total > 0 {
		prevRate = float64(prev.Completed) / float64(prev.Total) * 100
	}
	rep.Trends = Trends{
		Total:          trend(float64(rep.Counts.Total), float64(prev.Total), rep.Counts.Total >= prev.Total),
		Completed:      trend(float64(rep.Counts.Completed), float64(prev.Completed), rep.Counts.Completed >= prev.Completed),
		Remaining:      trend(float64(rep.Counts.Remaining), float64(prev.Total-prev.Completed), false),
		CompletionRate: trend(float64(rep.CompletionRate), prevRate, true),
	}
	return rep
}

func (c *Counts) add(t models.Todo) {
	c.Total++
	switch t.Status {
	case models.StatusCompleted:
		c.Completed++
	case models.StatusPending:
		c.Pending++
		c.Remaining++
	case models.StatusInProgress:
		c.InProgress++
		c.Remaining++
	}
}

func daily(todos []models.Todo, start, end time.Time, buckets int) Daily {
	d := Daily{
		Days:      make([]time.Time, buckets),
		Total:     make([]int, buckets),
		Completed: make([]int, buckets),
		New:       make([]int, buckets),
	}
	for i := range buckets {
		d.Days[i] = end.AddDate(0, 0, i-buckets+1)
	}
	for _, t := range todos {
		if t.CreatedAt.Before(start) || t.CreatedAt.After(end) {
			continue
		}
		// whole days before end; index 0 is today
		ago := int(end.Sub(t.CreatedAt) / (24 * time.Hour))
		if ago >= buckets {
			continue
		}
		i := buckets - 1 - ago
		d.Total[i]++
		d.New[i]++
		if t.Status == models.StatusCompleted {
			d.Completed[i]++
		}
	}
	return d
}

func trend(current, previous float64, positive bool) Trend {
	if previous == 0 {
		return Trend{Text: "+0%", Positive: positive}
	}
	change := roundHalfUp((current - previous) / previous * 100)
	sign := "+"
	if change < 0 {
		sign = "-"
	}
	abs := change
	if abs < 0 {
		abs = -abs
	}
	return Trend{Percent: change, Text: fmt.Sprintf("%s%d%%", sign, abs), Positive: positive}
}

type AccountStats struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	ActivityRate int `json:"activity_rate"`
}

// Account summarizes the whole collection.
func Account(todos []models.Todo) AccountStats {
	var s AccountStats
	s.Total = len(todos)
	for _, t := range todos {
		if t.Status == models.StatusCompleted {
			s.Completed++
		}
	}
	s.ActivityRate = percent(s.Completed, s.Total)
	return s
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return roundHalfUp(float64(part) / float64(whole) * 100)
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
