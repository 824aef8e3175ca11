// Package billing resolves authorized home-healthcare service records into
// claims: it groups time entries, converts worked minutes into billed units,
// and prices lines from the authorization's contracted rate.
package billing

// Rounding is the billing unit conversion rule. A unit is UnitMinutes of
// service; a partial unit of RoundUpAt minutes or more rounds up, fewer
// rounds down. The Medicaid default is 15-minute units rounding up at 8.
type Rounding struct {
	UnitMinutes int
	RoundUpAt   int
}

// DefaultRounding returns the 15-minute / round-up-at-8 rule.
func DefaultRounding() Rounding {
	return Rounding{UnitMinutes: 15, RoundUpAt: 8}
}

// Units converts worked minutes into billed units.
// 118 minutes = 7x15 + 13, 13 >= 8, so 8 units; 112 = 7x15 + 7, so 7 units.
func (r Rounding) Units(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	units := minutes / r.UnitMinutes
	if minutes%r.UnitMinutes >= r.RoundUpAt {
		units++
	}
	return units
}
