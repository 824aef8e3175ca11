package x12

import (
	"strings"
	"testing"
)

const testISA = "ISA*00*          *00*          *ZZ*1234567        *ZZ*MEDICAID       " +
	"*260831*1200*^*00501*000000001*0*T*:~"

func TestReadTokenizesInterchange(t *testing.T) {
	data := []byte(testISA +
		"GS*FA*MEDICAID*1234567*20260831*1200*1*X*005010X231A1~" +
		"ST*999*0001~" +
		"AK1*HC*42~" +
		"AK9*A*1*1*1~" +
		"SE*4*0001~" +
		"GE*1*1~" +
		"IEA*1*000000001~")

	ic, err := Read(data)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if ic.Delimiters != DefaultDelimiters() {
		t.Errorf("sniffed delimiters wrong: %+v", ic.Delimiters)
	}
	if len(ic.Segments) != 7 {
		t.Fatalf("got %d segments, want 7", len(ic.Segments))
	}
	if ic.Segments[0].ID != "ISA" || ic.Segments[6].ID != "IEA" {
		t.Errorf("envelope segments wrong: %s..%s", ic.Segments[0].ID, ic.Segments[6].ID)
	}

	ak1 := ic.Segments[3]
	if ak1.ID != "AK1" || ak1.Element(2) != "42" {
		t.Errorf("AK1 tokenized wrong: %+v", ak1)
	}
	if ak1.Element(99) != "" || ak1.Element(0) != "" {
		t.Error("out-of-range element access should return empty")
	}
	if ak1.Offset != len(testISA)+len("GS*FA*MEDICAID*1234567*20260831*1200*1*X*005010X231A1~")+len("ST*999*0001~") {
		t.Errorf("AK1 offset wrong: %d", ak1.Offset)
	}
}

func TestReadToleratesSegmentWhitespace(t *testing.T) {
	data := []byte(testISA + "\r\n" +
		"GS*FA*MEDICAID*1234567*20260831*1200*1*X*005010X231A1~\n" +
		"IEA*1*000000001~\n")

	ic, err := Read(data)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(ic.Segments) != 3 {
		t.Errorf("got %d segments, want 3", len(ic.Segments))
	}
}

func TestReadRejectsStructuralViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated header", "ISA*00*short~"},
		{"missing ISA", strings.Repeat("X", 120)},
		{"unterminated segment", testISA + "GS*FA*MEDICAID"},
		{"missing IEA", testISA + "GS*FA*MEDICAID*1234567*20260831*1200*1*X*005010X231A1~"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read([]byte(tt.data))
			if err == nil {
				t.Fatal("expected read error")
			}
			re, ok := err.(*ReadError)
			if !ok {
				t.Fatalf("expected *ReadError, got %T", err)
			}
			if re.Offset < 0 || re.Offset > len(tt.data) {
				t.Errorf("offset %d out of file bounds", re.Offset)
			}
		})
	}
}

func TestReadSniffsNonDefaultDelimiters(t *testing.T) {
	alt := strings.NewReplacer("*", "|", "~", "!", "^", ">", ":", "<").Replace(testISA)
	data := []byte(alt + "IEA|1|000000001!")

	ic, err := Read(data)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := Delimiters{Element: '|', Segment: '!', SubElement: '<', Repetition: '>'}
	if ic.Delimiters != want {
		t.Errorf("got %+v, want %+v", ic.Delimiters, want)
	}
	if got := ic.SubElements("A2<20"); len(got) != 2 || got[1] != "20" {
		t.Errorf("composite split wrong: %v", got)
	}
}
