// Package derive holds the pure functions that compute stored derived
// fields: totals, variance, scores, SLA deadlines, effectiveness and
// balances. Nothing here performs I/O or reads the clock.
package derive
