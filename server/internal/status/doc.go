// Package status derives the displayed state of a portfolio from its issue
// history, its manual review flag, its lock and the active reservations.
//
// Classify is pure: it reads only its Input and always returns a Result in
// one of the defined bands. The evaluation order lives in a single rule
// table (see Rules) so the precedence can be inspected and tested on its own.
//
// Bands, highest precedence first:
//
//	logging   an unexpired reservation exists for the current hour
//	updated   all sites checked and an issue recorded less than an hour ago
//	1h 2h 3h  whole hours since the most recent issue
//	4h+       four or more hours, no issues at all, or anything unmapped
//
// A lock never changes the band; it is reported alongside it.
package status
