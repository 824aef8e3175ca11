// Package x12 provides low-level ANSI X12 segment encoding and interchange
// reading. Delimiters are configurable but fixed for the life of one
// interchange; the wire format has no escape mechanism, so field values
// containing a delimiter are rejected rather than encoded.
package x12

import "fmt"

// Delimiters holds the separator characters for one interchange.
type Delimiters struct {
	Element    byte
	Segment    byte
	SubElement byte
	Repetition byte
}

// DefaultDelimiters returns the separators used by most Medicaid payers.
func DefaultDelimiters() Delimiters {
	return Delimiters{
		Element:    '*',
		Segment:    '~',
		SubElement: ':',
		Repetition: '^',
	}
}

// Validate checks that the separators are usable: printable, pairwise
// distinct, and outside the basic character set that appears in field values.
func (d Delimiters) Validate() error {
	seps := []byte{d.Element, d.Segment, d.SubElement, d.Repetition}
	for i, s := range seps {
		if s < 0x21 || s > 0x7e {
			return fmt.Errorf("delimiter %d is not a printable character: 0x%02x", i, s)
		}
		if isAlphanumeric(s) {
			return fmt.Errorf("delimiter %q would collide with field content", s)
		}
		for j := i + 1; j < len(seps); j++ {
			if s == seps[j] {
				return fmt.Errorf("duplicate delimiter %q", s)
			}
		}
	}
	return nil
}

func isAlphanumeric(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
