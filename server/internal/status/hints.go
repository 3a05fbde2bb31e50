package status

import "fmt"

// Hint is one human-readable explanation attached to a portfolio card. The
// board shows Title as a chip and Detail on hover.
type Hint struct {
	// Key is stable and machine-readable.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Hints explains r. Being-logged and lock hints come first, then the band.
func Hints(r Result) []Hint {
	var hints []Hint

	if r.IsBeingLogged {
		who := r.LoggedBy
		if who == "" {
			who = "another operator"
		}
		hints = append(hints, Hint{
			Key:   "being_logged",
			Level: "info",
			Title: "Being logged",
			Detail: fmt.Sprintf(
				"%s is logging an issue for this portfolio in the current hour. "+
					"Wait for them to finish or pick another portfolio. "+
					"The reservation lapses on its own if they close the form without saving.",
				who),
		})
	}

	if r.Locked {
		by := r.LockedBy
		if by == "" {
			by = "an administrator"
		}
		hints = append(hints, Hint{
			Key:    "locked",
			Level:  "info",
			Title:  "Locked",
			Detail: fmt.Sprintf("This portfolio was locked by %s. Its status is still tracked as usual.", by),
		})
	}

	if !r.AllSitesChecked {
		detail := "Not every site in this portfolio has been reviewed, so it will not show as up to date " +
			"however recent its last issue is."
		if r.CheckedDetails != "" {
			detail += fmt.Sprintf(" Reason given: %q.", r.CheckedDetails)
		}
		hints = append(hints, Hint{
			Key:    "sites_unchecked",
			Level:  "warning",
			Title:  "Sites unchecked",
			Detail: detail,
		})
	}

	switch r.Band {
	case BandUpdated:
		hints = append(hints, Hint{
			Key:    "updated",
			Level:  "ok",
			Title:  "Up to date",
			Detail: "An issue was recorded within the last hour and all sites are checked.",
		})
	case Band1h, Band2h, Band3h:
		level := "info"
		if r.Band == Band3h {
			level = "warning"
		}
		hints = append(hints, Hint{
			Key:    "stale_" + string(r.Band),
			Level:  level,
			Title:  fmt.Sprintf("%s since last issue", r.Band),
			Detail: fmt.Sprintf("The most recent issue was recorded %d hour(s) ago.", *r.HoursSinceActivity),
		})
	case Band4hPlus:
		if r.HoursSinceActivity == nil {
			hints = append(hints, Hint{
				Key:    "never_logged",
				Level:  "critical",
				Title:  "Never logged",
				Detail: "No issue has ever been recorded for this portfolio.",
			})
			break
		}
		hints = append(hints, Hint{
			Key:   "stale_4h",
			Level: "critical",
			Title: "4h+ since last issue",
			Detail: fmt.Sprintf(
				"The most recent issue was recorded %d hour(s) ago. "+
					"This portfolio is overdue for a check.",
				*r.HoursSinceActivity),
		})
	}
	return hints
}
