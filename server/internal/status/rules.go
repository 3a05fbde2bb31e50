package status

import "time"

// Rule names in evaluation order.
const (
	RuleBeingLogged    = "being-logged"
	RuleSitesUnchecked = "sites-unchecked"
	RuleUpdated        = "updated"
	RuleDecay          = "decay"
)

type rule struct {
	name  string
	match func(f facts) bool
	apply func(f facts, r *Result)
}

var table = []rule{
	{
		name:  RuleBeingLogged,
		match: func(f facts) bool { return f.lease != nil },
		apply: func(f facts, r *Result) {
			r.Band = BandLogging
			r.IsBeingLogged = true
			r.LoggedBy = f.lease.MonitoredBy
			r.Label = "being logged"
			if f.lease.MonitoredBy != "" {
				r.Label = "being logged by " + f.lease.MonitoredBy
			}
		},
	},
	{
		name:  RuleSitesUnchecked,
		match: func(f facts) bool { return !f.in.Portfolio.AllSitesChecked },
		apply: func(f facts, r *Result) {
			r.Band = decay(f)
			r.Label = r.Band.Label()
			if d := f.in.Portfolio.CheckedDetails; d != "" {
				r.Label = d
			}
		},
	},
	{
		name:  RuleUpdated,
		match: func(f facts) bool { return f.has && f.age < time.Hour },
		apply: func(_ facts, r *Result) {
			r.Band = BandUpdated
			r.Label = BandUpdated.Label()
		},
	},
	{
		name:  RuleDecay,
		match: func(facts) bool { return true },
		apply: func(f facts, r *Result) {
			r.Band = decay(f)
			r.Label = r.Band.Label()
		},
	},
}

// Rules returns the rule names in the order Classify evaluates them.
func Rules() []string {
	out := make([]string, len(table))
	for i, r := range table {
		out[i] = r.name
	}
	return out
}
