package utils

import (
	"time"

	"github.com/vipauto/autoelectric-crm/apperrors"
)

// DateLayout is the format of date query parameters
const DateLayout = "2006-01-02"

// DateRange is a half-open [From, To) interval; nil bounds are open
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// ParseDateRange parses date_from and date_to values; date_to includes the whole day
func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	if from != "" {
		parsed, err := time.ParseInLocation(DateLayout, from, time.Local)
		if err != nil {
			return r, apperrors.New(apperrors.CodeValidation, "date_from must be in YYYY-MM-DD format")
		}
		r.From = &parsed
	}
	if to != "" {
		parsed, err := time.ParseInLocation(DateLayout, to, time.Local)
		if err != nil {
			return r, apperrors.New(apperrors.CodeValidation, "date_to must be in YYYY-MM-DD format")
		}
		end := parsed.AddDate(0, 0, 1)
		r.To = &end
	}
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return r, apperrors.New(apperrors.CodeValidation, "date_from must not be after date_to")
	}
	return r, nil
}

// PeriodRange returns the range covering the last week, month or year up to now
func PeriodRange(period string, now time.Time) (DateRange, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := today.AddDate(0, 0, 1)

	var start time.Time
	switch period {
	case "", "week":
		start = today.AddDate(0, 0, -6)
	case "month":
		start = today.AddDate(0, -1, 1)
	case "year":
		start = today.AddDate(-1, 0, 1)
	default:
		return DateRange{}, apperrors.New(apperrors.CodeValidation, "period must be one of week, month, year")
	}
	return DateRange{From: &start, To: &end}, nil
}

// Days lists the calendar days covered by a bounded range
func (r DateRange) Days() []time.Time {
	if r.From == nil || r.To == nil {
		return nil
	}
	var days []time.Time
	for day := *r.From; day.Before(*r.To); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}
