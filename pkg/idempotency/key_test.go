package idempotency

import "testing"

func TestGenerateKeyIsDeterministic(t *testing.T) {
	data := []byte("ISA*00*...~IEA*1*000000042~")

	a := GenerateKey("1234567", data)
	b := GenerateKey("1234567", data)
	if a != b {
		t.Error("same sender and payload produced different keys")
	}
	if len(a) != 64 {
		t.Errorf("key length %d, want 64 hex characters", len(a))
	}
}

func TestGenerateKeyVariesByInput(t *testing.T) {
	data := []byte("payload")

	if GenerateKey("1234567", data) == GenerateKey("7654321", data) {
		t.Error("different senders produced the same key")
	}
	if GenerateKey("1234567", data) == GenerateKey("1234567", []byte("other")) {
		t.Error("different payloads produced the same key")
	}
	// The separator keeps sender/payload boundaries unambiguous.
	if GenerateKey("12", []byte("34567")) == GenerateKey("12345", []byte("67")) {
		t.Error("sender/payload boundary ambiguous")
	}
}
