package quiethours

import "time"

// Approximate restricted hours used when the window API is unreachable.
// Rough daily observance times for the default region.
var defaultRestrictedHours = []int{5, 12, 15, 18, 19}

// safeMorningHour is where a past-midnight wrap lands, on the next day.
const safeMorningHour = 6

// fallbackCheck evaluates the static hour table. A proposed time whose
// hour matches a restricted hour is pushed to the top of the next hour,
// wrapping past midnight to the safe morning hour of the following day.
func fallbackCheck(proposed time.Time, restrictedHours []int) Result {
	hour := proposed.Hour()

	restricted := false
	for _, h := range restrictedHours {
		if hour == h {
			restricted = true
			break
		}
	}
	if !restricted {
		return Result{NextAvailable: proposed, Source: SourceFallback}
	}

	safeHour := hour + 1
	nextDay := false
	if safeHour >= 24 {
		safeHour = safeMorningHour
		nextDay = true
	}

	next := time.Date(
		proposed.Year(), proposed.Month(), proposed.Day(),
		safeHour, 0, 0, 0, proposed.Location(),
	)
	if nextDay {
		next = next.AddDate(0, 0, 1)
	}

	return Result{
		InWindow:      true,
		NextAvailable: next,
		WindowName:    "estimated",
		Source:        SourceFallback,
	}
}
