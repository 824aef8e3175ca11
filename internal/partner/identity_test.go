package partner

import (
	"testing"

	"github.com/caretide/go-edi/internal/x12"
)

func validIdentity() Identity {
	return Identity{
		SenderID:          "1234567",
		SenderQualifier:   "ZZ",
		ReceiverID:        "MEDICAID",
		ReceiverQualifier: "ZZ",
		SubmitterName:     "CARETIDE HOME HEALTH",
		Usage:             UsageTest,
		Delimiters:        x12.DefaultDelimiters(),
	}
}

func TestIdentityValidate(t *testing.T) {
	if err := validIdentity().Validate(); err != nil {
		t.Errorf("valid identity rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Identity)
	}{
		{"short sender", func(i *Identity) { i.SenderID = "12345" }},
		{"non-numeric sender", func(i *Identity) { i.SenderID = "12345AB" }},
		{"empty receiver", func(i *Identity) { i.ReceiverID = "" }},
		{"bad usage", func(i *Identity) { i.Usage = "X" }},
		{"missing qualifier", func(i *Identity) { i.SenderQualifier = "" }},
		{"bad delimiters", func(i *Identity) { i.Delimiters.Element = i.Delimiters.Segment }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := validIdentity()
			tt.mutate(&id)
			if err := id.Validate(); err == nil {
				t.Error("invalid identity accepted")
			}
		})
	}
}
