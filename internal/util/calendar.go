package util

import (
	"time"
)

// nyLocation is the exchange reference timezone. Day boundaries and market
// hours are always computed here, never in the host timezone.
var nyLocation = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// ExchangeTime returns the current time in the exchange timezone.
func ExchangeTime() time.Time {
	return time.Now().In(nyLocation)
}

// TradingDay returns the trading-day marker (YYYY-MM-DD) for t in the
// exchange timezone.
func TradingDay(t time.Time) string {
	return t.In(nyLocation).Format("2006-01-02")
}

// TradingCalendar provides market-hours awareness for the US equity session.
type TradingCalendar struct {
	openHour    int
	openMinute  int
	closeHour   int
	closeMinute int
}

// NewTradingCalendar creates a TradingCalendar with the given session bounds
// in exchange-local time (e.g. 9:30-16:00 for NYSE).
func NewTradingCalendar(openHour, openMinute, closeHour, closeMinute int) *TradingCalendar {
	return &TradingCalendar{
		openHour:    openHour,
		openMinute:  openMinute,
		closeHour:   closeHour,
		closeMinute: closeMinute,
	}
}

// IsMarketOpen returns whether the regular session is open at time t.
// Weekends are closed; exchange holidays are not modelled.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	et := t.In(nyLocation)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	open := tc.openHour*60 + tc.openMinute
	close := tc.closeHour*60 + tc.closeMinute
	return minutes >= open && minutes < close
}

// SessionString returns the session bounds as "HH:MM-HH:MM" for logging.
func (tc *TradingCalendar) SessionString() string {
	return time.Date(0, 1, 1, tc.openHour, tc.openMinute, 0, 0, time.UTC).Format("15:04") +
		"-" +
		time.Date(0, 1, 1, tc.closeHour, tc.closeMinute, 0, 0, time.UTC).Format("15:04")
}
