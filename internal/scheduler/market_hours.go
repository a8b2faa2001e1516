package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// TradingWindow represents a single trading period within a day
type TradingWindow struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// ExchangeCalendar defines trading hours and holidays for an exchange
type ExchangeCalendar struct {
	Code           string
	Name           string
	Timezone       *time.Location
	TradingWindows []TradingWindow
	Holidays       []time.Time
}

// MarketHoursService answers whether an exchange is currently in its
// trading session. Used to avoid polling the broker when nothing can
// possibly have filled.
type MarketHoursService struct {
	calendars map[string]*ExchangeCalendar
	log       zerolog.Logger
}

// NewMarketHoursService creates a new market hours service
func NewMarketHoursService(log zerolog.Logger) *MarketHoursService {
	service := &MarketHoursService{
		calendars: make(map[string]*ExchangeCalendar),
		log:       log.With().Str("component", "market_hours").Logger(),
	}

	service.initializeCalendars()
	return service
}

// initializeCalendars sets up trading hours and holidays.
// Both NSE and BSE trade 09:15-15:30 IST with a shared holiday list.
func (s *MarketHoursService) initializeCalendars() {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fall back to a fixed offset; IST has no DST
		ist = time.FixedZone("IST", 5*3600+1800)
	}

	holidays := []time.Time{
		time.Date(2026, 1, 26, 0, 0, 0, 0, ist),  // Republic Day
		time.Date(2026, 3, 3, 0, 0, 0, 0, ist),   // Holi
		time.Date(2026, 4, 3, 0, 0, 0, 0, ist),   // Good Friday
		time.Date(2026, 5, 1, 0, 0, 0, 0, ist),   // Maharashtra Day
		time.Date(2026, 8, 15, 0, 0, 0, 0, ist),  // Independence Day
		time.Date(2026, 10, 2, 0, 0, 0, 0, ist),  // Gandhi Jayanti
		time.Date(2026, 11, 10, 0, 0, 0, 0, ist), // Diwali
		time.Date(2026, 12, 25, 0, 0, 0, 0, ist), // Christmas
	}

	equityWindow := []TradingWindow{
		{OpenHour: 9, OpenMinute: 15, CloseHour: 15, CloseMinute: 30},
	}

	s.calendars["NSE"] = &ExchangeCalendar{
		Code:           "XNSE",
		Name:           "NSE",
		Timezone:       ist,
		TradingWindows: equityWindow,
		Holidays:       holidays,
	}
	s.calendars["BSE"] = &ExchangeCalendar{
		Code:           "XBOM",
		Name:           "BSE",
		Timezone:       ist,
		TradingWindows: equityWindow,
		Holidays:       holidays,
	}
	// Derivatives segments share the equity session
	s.calendars["NFO"] = s.calendars["NSE"]
	s.calendars["BFO"] = s.calendars["BSE"]
}

// IsOpen reports whether the exchange is in session at the given time
func (s *MarketHoursService) IsOpen(exchange string, at time.Time) bool {
	cal, ok := s.calendars[exchange]
	if !ok {
		// Unknown exchange: assume open so fills are never missed
		return true
	}

	local := at.In(cal.Timezone)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	for _, h := range cal.Holidays {
		if h.Year() == local.Year() && h.YearDay() == local.YearDay() {
			return false
		}
	}

	minutes := local.Hour()*60 + local.Minute()
	for _, w := range cal.TradingWindows {
		open := w.OpenHour*60 + w.OpenMinute
		close := w.CloseHour*60 + w.CloseMinute
		if minutes >= open && minutes <= close {
			return true
		}
	}
	return false
}

// AnyOpen reports whether any known exchange is in session
func (s *MarketHoursService) AnyOpen(at time.Time) bool {
	for code := range s.calendars {
		if s.IsOpen(code, at) {
			return true
		}
	}
	return false
}
