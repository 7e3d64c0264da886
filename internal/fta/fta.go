// Package fta classifies trade routes as preferential when both ends belong
// to the fixed free-trade-agreement membership set.
package fta

import "sort"

var members = map[string]struct{}{
	"Australia":   {},
	"China":       {},
	"Indonesia":   {},
	"India":       {},
	"Japan":       {},
	"Malaysia":    {},
	"Philippines": {},
	"Singapore":   {},
	"Vietnam":     {},
}

// IsMember reports whether country belongs to the FTA set.
func IsMember(country string) bool {
	_, ok := members[country]
	return ok
}

// IsPreferential reports whether the route from partner into reporter
// qualifies for the AHS rate.
func IsPreferential(reporter, partner string) bool {
	return IsMember(reporter) && IsMember(partner)
}

// Members returns the membership set in alphabetical order.
func Members() []string {
	out := make([]string, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
