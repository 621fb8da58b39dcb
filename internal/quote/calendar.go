package quote

import "time"

// TradingCalendar knows which weekdays the exchange is closed.
type TradingCalendar struct {
	Weekend [2]time.Weekday
}

// DefaultCalendar closes on Saturday and Sunday.
var DefaultCalendar = TradingCalendar{Weekend: [2]time.Weekday{time.Saturday, time.Sunday}}

// IsTradingDay reports whether t's weekday is a trading day.
func (c TradingCalendar) IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != c.Weekend[0] && wd != c.Weekend[1]
}

// EffectiveTradingDay returns midnight of now's date, rolled back to the
// most recent trading day when now falls on a weekend.
func (c TradingCalendar) EffectiveTradingDay(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := 0; i < 7 && !c.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// EffectiveTradingDay uses the Saturday/Sunday calendar.
func EffectiveTradingDay(now time.Time) time.Time {
	return DefaultCalendar.EffectiveTradingDay(now)
}
