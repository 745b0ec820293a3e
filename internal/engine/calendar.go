package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

const nanosPerDay = int64(24 * time.Hour)

// Months are a fixed 30 days. Calendar-month lengths are ignored on purpose,
// so a "monthly" period is the same length in February and in July.
var daysPerPeriod = map[string]int{
	models.FrequencyDaily:    1,
	models.FrequencyWeekly:   7,
	models.FrequencyBiweekly: 15,
	models.FrequencyMonthly:  30,
}

// DaysPerPeriod returns the day count of one accrual period for a frequency.
func DaysPerPeriod(frequency string) (int, error) {
	days, ok := daysPerPeriod[frequency]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFrequency, frequency)
	}
	return days, nil
}

// ElapsedDays returns the fractional number of days between two instants.
func ElapsedDays(from, to time.Time) (decimal.Decimal, error) {
	if to.Before(from) {
		return decimal.Zero, fmt.Errorf("%w: %s is before %s", ErrInvalidTimeRange, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return decimal.NewFromInt(int64(to.Sub(from))).Div(decimal.NewFromInt(nanosPerDay)), nil
}

// PeriodsElapsed converts the span between two instants into a fractional
// number of accrual periods. The result is never rounded to whole periods.
func PeriodsElapsed(frequency string, from, to time.Time) (decimal.Decimal, error) {
	days, err := DaysPerPeriod(frequency)
	if err != nil {
		return decimal.Zero, err
	}
	elapsed, err := ElapsedDays(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return elapsed.Div(decimal.NewFromInt(int64(days))), nil
}

// DueDateAfter returns the instant n whole periods after start.
func DueDateAfter(frequency string, start time.Time, n int) (time.Time, error) {
	days, err := DaysPerPeriod(frequency)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, days*n), nil
}
