package x12

import (
	"errors"
	"testing"
	"time"
)

func newTestEncoder(t *testing.T) *Encoder {
	t.Helper()
	enc, err := NewEncoder(DefaultDelimiters())
	if err != nil {
		t.Fatalf("encoder creation failed: %v", err)
	}
	return enc
}

func TestEncodeTrailingElision(t *testing.T) {
	enc := newTestEncoder(t)

	got, err := enc.Encode("NM1", []Field{
		ID("41").Req(), ID("2").Req(), AN("ACME HOME HEALTH").Req(),
		Empty(), Empty(), Empty(), Empty(),
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := "NM1*41*2*ACME HOME HEALTH~"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEncodeRequiredPlaceholderKept(t *testing.T) {
	enc := newTestEncoder(t)

	got, err := enc.Encode("REF", []Field{AN("EI").Req(), Empty().Req()})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got != "REF*EI*~" {
		t.Errorf("got %q, want REF*EI*~", got)
	}
}

func TestEncodeTypedFields(t *testing.T) {
	enc := newTestEncoder(t)
	date := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	got, err := enc.Encode("DTP", []Field{
		ID("472").Req(), ID("D8").Req(), DT(date).Req(),
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got != "DTP*472*D8*20260315~" {
		t.Errorf("got %q", got)
	}

	got, err = enc.Encode("GS", []Field{
		ID("HC").Req(), D6(date).Req(), TM(date).Req(), N0(42).Req(),
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got != "GS*HC*260315*0930*42~" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeComposite(t *testing.T) {
	enc := newTestEncoder(t)

	got, err := enc.Encode("SV1", []Field{
		Composite("HC", "T1019", "", "").Req(),
		Amount(20000).Req(),
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got != "SV1*HC:T1019*200~" {
		t.Errorf("trailing composite components not elided: %q", got)
	}
}

func TestEncodeRejectsEmbeddedDelimiter(t *testing.T) {
	enc := newTestEncoder(t)

	tests := []struct {
		name  string
		field Field
		delim byte
	}{
		{"element separator", AN("SMITH*JONES"), '*'},
		{"segment terminator", AN("SMITH~JONES"), '~'},
		{"sub-element in simple field", AN("SMITH:JONES"), ':'},
		{"sub-element in composite part", Composite("ABK", "I1:0"), ':'},
		{"element separator in composite part", Composite("HC", "T10*19"), '*'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode("NM1", []Field{tt.field})
			var fv *FormatViolation
			if !errors.As(err, &fv) {
				t.Fatalf("expected FormatViolation, got %v", err)
			}
			if fv.SegmentID != "NM1" || fv.Element != 1 || fv.Delimiter != tt.delim {
				t.Errorf("violation context wrong: %+v", fv)
			}
		})
	}

	if err := enc.CheckRaw("SV1", 1, "T10:19"); err == nil {
		t.Error("CheckRaw accepted a value containing the sub-element separator")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0"},
		{5, "0.05"},
		{100, "1"},
		{150, "1.50"},
		{20000, "200"},
		{12345, "123.45"},
		{-150, "-1.50"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.cents); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"200", 20000},
		{"123.45", 12345},
		{"1.5", 150},
		{"-1.50", -150},
		{"0.05", 5},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Errorf("ParseAmount(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"1.234", "12x", "."} {
		if _, err := ParseAmount(bad); err == nil {
			t.Errorf("ParseAmount(%q) should fail", bad)
		}
	}
}

func TestDelimitersValidate(t *testing.T) {
	if err := DefaultDelimiters().Validate(); err != nil {
		t.Errorf("default delimiters rejected: %v", err)
	}

	dup := Delimiters{Element: '*', Segment: '*', SubElement: ':', Repetition: '^'}
	if err := dup.Validate(); err == nil {
		t.Error("duplicate separators accepted")
	}

	alnum := Delimiters{Element: 'A', Segment: '~', SubElement: ':', Repetition: '^'}
	if err := alnum.Validate(); err == nil {
		t.Error("alphanumeric separator accepted")
	}

	ctl := Delimiters{Element: 0x09, Segment: '~', SubElement: ':', Repetition: '^'}
	if err := ctl.Validate(); err == nil {
		t.Error("non-printable separator accepted")
	}
}
