package worker

import (
	"strconv"
	"strings"
	"time"

	"formrunner/internal/config"
)

var defaultZone = time.FixedZone("JST", 9*60*60)

// WithinBusinessHours reports whether submissions are permitted at the given
// instant. The end minute is inclusive: a 17:00 end still sends at 17:00:59.
func WithinBusinessHours(now time.Time, tg config.Targeting) bool {
	now = now.In(tenantZone(tg))

	day := int(now.Weekday())
	dayOK := false
	for _, d := range tg.SendDaysOfWeek {
		if d == day {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}

	start, okStart := parseHHMM(tg.SendStartTime)
	end, okEnd := parseHHMM(tg.SendEndTime)
	if !okStart || !okEnd {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	return cur >= start && cur <= end
}

func tenantZone(tg config.Targeting) *time.Location {
	if tg.Timezone == "" {
		return defaultZone
	}
	loc, err := time.LoadLocation(tg.Timezone)
	if err != nil {
		return defaultZone
	}
	return loc
}

func parseHHMM(s string) (int, bool) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hour, err1 := strconv.Atoi(h)
	minute, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
