package model

import "time"

// WeeklyTemplate is the standing availability for one weekday.
type WeeklyTemplate struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     ClockTime    `json:"start_time"`
	End       ClockTime    `json:"end_time"`
	Enabled   bool         `json:"enabled"`
}

// DateException overrides the template on a single date. Without Start/End
// the whole date is closed; with both it removes that window only.
type DateException struct {
	ID        string     `json:"id"`
	Date      Date       `json:"date"`
	Start     *ClockTime `json:"start_time,omitempty"`
	End       *ClockTime `json:"end_time,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (e DateException) FullDay() bool {
	return e.Start == nil && e.End == nil
}
