package x12

import (
	"fmt"
	"strings"
)

// ISA is fixed-width: the element separator is the 4th byte, the sub-element
// separator the 105th, and the segment terminator the 106th.
const isaLength = 106

// RawSegment is one tokenized segment of a received interchange. Elements
// excludes the segment identifier; Offset is the byte position of the segment
// identifier within the original file.
type RawSegment struct {
	ID       string
	Elements []string
	Offset   int
}

// Element returns the 1-based element, or "" when absent.
func (s RawSegment) Element(n int) string {
	if n < 1 || n > len(s.Elements) {
		return ""
	}
	return s.Elements[n-1]
}

// ReadError reports the first structural violation found while tokenizing a
// received file, with the byte offset where it occurred.
type ReadError struct {
	Offset int
	Reason string
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("invalid X12 interchange at byte %d: %s", e.Offset, e.Reason)
}

// Interchange is a tokenized inbound file.
type Interchange struct {
	Delimiters Delimiters
	Segments   []RawSegment
}

// Read sniffs the delimiter set from the ISA header and tokenizes the whole
// interchange. It verifies only envelope-level structure; transaction-level
// structure is the caller's concern.
func Read(data []byte) (*Interchange, error) {
	if len(data) < isaLength {
		return nil, &ReadError{Offset: len(data), Reason: "file shorter than an ISA header"}
	}
	if string(data[0:3]) != "ISA" {
		return nil, &ReadError{Offset: 0, Reason: "missing ISA header"}
	}

	d := Delimiters{
		Element:    data[3],
		SubElement: data[104],
		Segment:    data[105],
		Repetition: data[82],
	}
	if err := d.Validate(); err != nil {
		return nil, &ReadError{Offset: 3, Reason: "unusable delimiter set: " + err.Error()}
	}

	ic := &Interchange{Delimiters: d}
	pos := 0
	for pos < len(data) {
		// Skip inter-segment whitespace some partners insert after the
		// terminator.
		for pos < len(data) && (data[pos] == '\r' || data[pos] == '\n' || data[pos] == ' ') {
			pos++
		}
		if pos >= len(data) {
			break
		}
		end := indexByteFrom(data, d.Segment, pos)
		if end < 0 {
			return nil, &ReadError{Offset: pos, Reason: "unterminated segment"}
		}
		raw := string(data[pos:end])
		parts := strings.Split(raw, string(d.Element))
		if parts[0] == "" {
			return nil, &ReadError{Offset: pos, Reason: "segment with empty identifier"}
		}
		ic.Segments = append(ic.Segments, RawSegment{
			ID:       parts[0],
			Elements: parts[1:],
			Offset:   pos,
		})
		pos = end + 1
	}

	if len(ic.Segments) == 0 {
		return nil, &ReadError{Offset: 0, Reason: "no segments"}
	}
	last := ic.Segments[len(ic.Segments)-1]
	if last.ID != "IEA" {
		return nil, &ReadError{Offset: last.Offset, Reason: "interchange does not end with IEA"}
	}
	return ic, nil
}

// SubElements splits a composite element on the interchange's sub-element
// separator.
func (ic *Interchange) SubElements(v string) []string {
	return strings.Split(v, string(ic.Delimiters.SubElement))
}

func indexByteFrom(data []byte, b byte, from int) int {
	for i := from; i < len(data); i++ {
		if data[i] == b {
			return i
		}
	}
	return -1
}
