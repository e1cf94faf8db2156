package calendar

import (
	"fmt"
	"time"

	"MarketShard/internal/model"
)

// TimeOfDay is a wall-clock time in a market's local zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// On returns the instant of t on the given date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// MarketConfig describes one market's timezone and regular session.
type MarketConfig struct {
	Tag      model.MarketTag
	Location *time.Location
	Open     TimeOfDay
	Close    TimeOfDay
}

// SessionBounds returns open and close for the session on date.
func (c MarketConfig) SessionBounds(date time.Time) (open, close time.Time) {
	return c.Open.On(date, c.Location), c.Close.On(date, c.Location)
}

type entry struct {
	zone      string
	utcOffset int // minutes, used only when tzdata is unavailable
	open      TimeOfDay
	close     TimeOfDay
}

var table = map[model.MarketTag]entry{
	model.MarketUS:      {"America/New_York", -300, TimeOfDay{9, 30}, TimeOfDay{16, 0}},
	model.MarketIndex:   {"America/New_York", -300, TimeOfDay{9, 30}, TimeOfDay{16, 0}},
	model.MarketIndia:   {"Asia/Kolkata", 330, TimeOfDay{9, 15}, TimeOfDay{15, 30}},
	model.MarketUK:      {"Europe/London", 0, TimeOfDay{8, 0}, TimeOfDay{16, 30}},
	model.MarketGermany: {"Europe/Berlin", 60, TimeOfDay{9, 0}, TimeOfDay{17, 30}},
	model.MarketJapan:   {"Asia/Tokyo", 540, TimeOfDay{9, 0}, TimeOfDay{15, 0}},
	model.MarketHK:      {"Asia/Hong_Kong", 480, TimeOfDay{9, 30}, TimeOfDay{16, 0}},
	model.MarketDefault: {"America/New_York", -300, TimeOfDay{9, 30}, TimeOfDay{16, 0}},
}

var resolved = func() map[model.MarketTag]MarketConfig {
	out := make(map[model.MarketTag]MarketConfig, len(table))
	for tag, e := range table {
		out[tag] = MarketConfig{Tag: tag, Location: location(e), Open: e.open, Close: e.close}
	}
	return out
}()

// Resolve returns the calendar for a catalog market tag. It never fails:
// unknown tags get the DEFAULT trading hours.
func Resolve(tag string) MarketConfig {
	return ResolveTag(model.ParseMarketTag(tag))
}

// ResolveTag is Resolve for an already parsed tag.
func ResolveTag(tag model.MarketTag) MarketConfig {
	if cfg, ok := resolved[tag]; ok {
		return cfg
	}
	return resolved[model.MarketDefault]
}

func location(e entry) *time.Location {
	loc, err := time.LoadLocation(e.zone)
	if err != nil {
		// No DST without tzdata; the binaries embed it.
		return time.FixedZone(e.zone, e.utcOffset*60)
	}
	return loc
}
