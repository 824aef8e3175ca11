package x12

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldKind identifies the X12 data element type used when rendering a field.
type FieldKind int

const (
	// KindID is an identifier/code value (qualifiers, code set members).
	KindID FieldKind = iota
	// KindAN is a free-form alphanumeric string.
	KindAN
	// KindDT is a date, rendered as the 8-digit CCYYMMDD form.
	KindDT
	// KindD6 is a date, rendered as the 6-digit YYMMDD form (ISA09 only).
	KindD6
	// KindTM is a time, rendered as HHMM.
	KindTM
	// KindN0 is an integer with no decimal positions.
	KindN0
	// KindR is a decimal number with an explicit decimal point. Monetary
	// values are carried as integer cents and rendered on encode.
	KindR
	// KindComposite is a set of sub-element separated components.
	KindComposite
)

// Field is one typed data element of a segment.
type Field struct {
	Kind     FieldKind
	Value    string
	Parts    []string
	Date     time.Time
	Number   int64
	Required bool
}

// ID builds an identifier field.
func ID(v string) Field { return Field{Kind: KindID, Value: v} }

// AN builds an alphanumeric field.
func AN(v string) Field { return Field{Kind: KindAN, Value: v} }

// DT builds an 8-digit date field.
func DT(t time.Time) Field { return Field{Kind: KindDT, Date: t} }

// D6 builds a 6-digit date field.
func D6(t time.Time) Field { return Field{Kind: KindD6, Date: t} }

// TM builds a 4-digit time field.
func TM(t time.Time) Field { return Field{Kind: KindTM, Date: t} }

// N0 builds an integer field.
func N0(n int64) Field { return Field{Kind: KindN0, Number: n} }

// Amount builds a decimal monetary field from integer cents.
func Amount(cents int64) Field { return Field{Kind: KindR, Number: cents} }

// Composite builds a sub-element separated field. Empty trailing components
// are elided on encode.
func Composite(parts ...string) Field { return Field{Kind: KindComposite, Parts: parts} }

// Empty is an omitted optional field.
func Empty() Field { return Field{Kind: KindAN} }

// Req marks the field as required so an empty value is preserved as a
// placeholder instead of being elided from the segment tail.
func (f Field) Req() Field {
	f.Required = true
	return f
}

// FormatViolation reports a field value that is structurally incompatible
// with the configured delimiters. The build is aborted: transmitting the
// value would corrupt the interchange for every following segment.
type FormatViolation struct {
	SegmentID string
	Element   int // 1-based element position within the segment
	Value     string
	Delimiter byte
}

func (e *FormatViolation) Error() string {
	return fmt.Sprintf("segment %s element %02d: value %q contains reserved delimiter %q",
		e.SegmentID, e.Element, e.Value, e.Delimiter)
}

// Encoder renders typed fields into delimited segment text.
// An Encoder is a pure function of its delimiter configuration and is safe
// for concurrent use.
type Encoder struct {
	delims Delimiters
}

// NewEncoder creates an encoder for the given delimiter set.
func NewEncoder(d Delimiters) (*Encoder, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{delims: d}, nil
}

// Delimiters returns the encoder's delimiter configuration.
func (e *Encoder) Delimiters() Delimiters { return e.delims }

// Encode renders one segment, including its terminator.
//
// Trailing empty optional fields are stripped per the trailing-separator
// elision rule; trailing empty required fields are kept as placeholders.
func (e *Encoder) Encode(segmentID string, fields []Field) (string, error) {
	rendered := make([]string, len(fields))
	for i, f := range fields {
		if f.Kind == KindComposite {
			// Parts are checked individually: the sub-element separator is
			// structure between them, never data inside them.
			for _, p := range f.Parts {
				if err := e.CheckRaw(segmentID, i+1, p); err != nil {
					return "", err
				}
			}
		}
		v, err := e.render(f)
		if err != nil {
			return "", err
		}
		if f.Kind != KindComposite {
			if err := e.CheckRaw(segmentID, i+1, v); err != nil {
				return "", err
			}
		}
		rendered[i] = v
	}

	last := -1
	for i := len(fields) - 1; i >= 0; i-- {
		if rendered[i] != "" || fields[i].Required {
			last = i
			break
		}
	}

	var b strings.Builder
	b.WriteString(segmentID)
	for i := 0; i <= last; i++ {
		b.WriteByte(e.delims.Element)
		b.WriteString(rendered[i])
	}
	b.WriteByte(e.delims.Segment)
	return b.String(), nil
}

func (e *Encoder) render(f Field) (string, error) {
	switch f.Kind {
	case KindID, KindAN:
		return f.Value, nil
	case KindDT:
		if f.Date.IsZero() {
			return "", nil
		}
		return f.Date.Format("20060102"), nil
	case KindD6:
		if f.Date.IsZero() {
			return "", nil
		}
		return f.Date.Format("060102"), nil
	case KindTM:
		if f.Date.IsZero() {
			return "", nil
		}
		return f.Date.Format("1504"), nil
	case KindN0:
		return strconv.FormatInt(f.Number, 10), nil
	case KindR:
		return FormatAmount(f.Number), nil
	case KindComposite:
		parts := f.Parts
		for len(parts) > 0 && parts[len(parts)-1] == "" {
			parts = parts[:len(parts)-1]
		}
		return strings.Join(parts, string(e.delims.SubElement)), nil
	default:
		return "", fmt.Errorf("unknown field kind %d", f.Kind)
	}
}

// CheckRaw validates one data value against the full delimiter set. Encode
// applies it to every simple value and every composite part; it is exported so
// callers can screen values before they are committed to a segment.
func (e *Encoder) CheckRaw(segmentID string, element int, v string) error {
	for _, d := range []byte{e.delims.Element, e.delims.Segment, e.delims.SubElement} {
		if strings.IndexByte(v, d) >= 0 {
			return &FormatViolation{SegmentID: segmentID, Element: element, Value: v, Delimiter: d}
		}
	}
	return nil
}

// FormatAmount renders integer cents as an X12 "R" decimal value.
// Whole-dollar amounts omit the decimal point, as payers expect.
func FormatAmount(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10)
	if rem := cents % 100; rem != 0 {
		s = fmt.Sprintf("%s.%02d", s, rem)
	}
	if neg {
		return "-" + s
	}
	return s
}

// ParseAmount converts an X12 decimal value into integer cents.
func ParseAmount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimal positions", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", s, err)
	}
	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}
