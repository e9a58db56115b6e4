package bulk

import (
	"fmt"
	"time"

	"github.com/rukunwarga/rukun/internal/shared"
)

// Window resolves the scope into a half-open due date interval. A month+year
// pair covers the whole calendar month, an explicit date covers that day.
func (s Scope) Window(loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	hasPeriod := s.Month != 0 || s.Year != 0
	switch {
	case s.Date != nil && hasPeriod:
		return Window{}, fmt.Errorf("%w: scope takes either month+year or date, not both", shared.ErrValidation)
	case s.Date != nil:
		d := s.Date.In(loc)
		from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		return Window{From: from, To: from.AddDate(0, 0, 1)}, nil
	case hasPeriod:
		if s.Month < 1 || s.Month > 12 {
			return Window{}, fmt.Errorf("%w: month %d out of range", shared.ErrValidation, s.Month)
		}
		if s.Year < 1 {
			return Window{}, fmt.Errorf("%w: year required with month", shared.ErrValidation)
		}
		from := time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, loc)
		return Window{From: from, To: from.AddDate(0, 1, 0)}, nil
	default:
		return Window{}, fmt.Errorf("%w: scope requires month+year or date", shared.ErrValidation)
	}
}

// Filter returns the sub-type/status narrowing of the scope.
func (s Scope) Filter() Filter {
	return Filter{Type: s.Type, Status: s.Status}
}
