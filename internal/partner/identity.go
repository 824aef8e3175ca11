// Package partner holds the trading partner identity shared read-only by
// every component that builds or reads envelopes.
package partner

import (
	"fmt"

	"github.com/caretide/go-edi/internal/x12"
)

// Usage is the ISA15 test/production indicator. It is taken verbatim into the
// envelope; a mismatch with the target environment is a configuration error,
// never silently corrected.
type Usage string

const (
	UsageTest       Usage = "T"
	UsageProduction Usage = "P"
)

// Identity is one sender/receiver pair for a payer connection. Immutable per
// environment.
type Identity struct {
	// SenderID is the 7-digit Medicaid provider number assigned to the agency.
	SenderID        string
	SenderQualifier string
	// ReceiverID is the fixed payer code from the companion guide.
	ReceiverID        string
	ReceiverQualifier string
	SubmitterName     string
	ContactName       string
	ContactPhone      string
	Usage             Usage
	Delimiters        x12.Delimiters
}

// Validate checks the identity before it is used to build an envelope.
func (i Identity) Validate() error {
	if len(i.SenderID) != 7 {
		return fmt.Errorf("sender identifier must be 7 digits, got %q", i.SenderID)
	}
	for _, r := range i.SenderID {
		if r < '0' || r > '9' {
			return fmt.Errorf("sender identifier must be numeric, got %q", i.SenderID)
		}
	}
	if i.ReceiverID == "" {
		return fmt.Errorf("receiver identifier is required")
	}
	if i.Usage != UsageTest && i.Usage != UsageProduction {
		return fmt.Errorf("usage indicator must be T or P, got %q", i.Usage)
	}
	if i.SenderQualifier == "" || i.ReceiverQualifier == "" {
		return fmt.Errorf("interchange qualifiers are required")
	}
	return i.Delimiters.Validate()
}
