package dosing

import (
	"fmt"
	"time"
)

// FormatRemaining renders a wait as the two largest useful units:
// "1 day 3 hours", "2 hours 5 minutes", or "45 minutes". Zero-valued
// trailing units are dropped. Partial minutes round up so a positive wait
// never prints as "0 minutes".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	minutes := int64((d + time.Minute - 1) / time.Minute)
	if minutes == 0 {
		minutes = 1
	}

	days := minutes / (24 * 60)
	hours := (minutes % (24 * 60)) / 60
	mins := minutes % 60

	switch {
	case days > 0:
		if hours == 0 {
			return plural(days, "day")
		}
		return plural(days, "day") + " " + plural(hours, "hour")
	case hours > 0:
		if mins == 0 {
			return plural(hours, "hour")
		}
		return plural(hours, "hour") + " " + plural(mins, "minute")
	default:
		return plural(mins, "minute")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
