// Package spec837p builds 005010X222A1 professional claim transactions.
// The loop structure is declared as data so the builder can audit what it
// emitted against the transaction definition instead of trusting itself.
package spec837p

import (
	"fmt"
)

// Version is the implementation guide version carried in GS08 and ST03.
const Version = "005010X222A1"

// SegmentUse declares one segment position inside a loop.
type SegmentUse struct {
	ID       string
	Required bool
	Max      int // 0 means unbounded
}

// LoopDef is one loop of the transaction definition.
type LoopDef struct {
	Name     string
	Segments []SegmentUse
	Loops    []LoopDef
}

// Transaction returns the subset of the 837P definition this subsystem emits.
// Segments the builder never produces are omitted rather than declared
// optional; an omitted segment showing up in the audit is a bug.
func Transaction() LoopDef {
	return LoopDef{
		Name: "837",
		Segments: []SegmentUse{
			{ID: "ST", Required: true, Max: 1},
			{ID: "BHT", Required: true, Max: 1},
			{ID: "SE", Required: true, Max: 1},
		},
		Loops: []LoopDef{
			{
				Name: "1000A",
				Segments: []SegmentUse{
					{ID: "NM1", Required: true, Max: 1},
					{ID: "PER", Required: true, Max: 2},
				},
			},
			{
				Name: "1000B",
				Segments: []SegmentUse{
					{ID: "NM1", Required: true, Max: 1},
				},
			},
			{
				Name: "2000A",
				Segments: []SegmentUse{
					{ID: "HL", Required: true, Max: 1},
					{ID: "PRV", Max: 1},
				},
				Loops: []LoopDef{
					{
						Name: "2010AA",
						Segments: []SegmentUse{
							{ID: "NM1", Required: true, Max: 1},
							{ID: "N3", Required: true, Max: 1},
							{ID: "N4", Required: true, Max: 1},
							{ID: "REF", Required: true, Max: 1},
						},
					},
					{
						Name: "2000B",
						Segments: []SegmentUse{
							{ID: "HL", Required: true, Max: 1},
							{ID: "SBR", Required: true, Max: 1},
						},
						Loops: []LoopDef{
							{
								Name: "2010BA",
								Segments: []SegmentUse{
									{ID: "NM1", Required: true, Max: 1},
									{ID: "N3", Max: 1},
									{ID: "N4", Max: 1},
									{ID: "DMG", Required: true, Max: 1},
								},
							},
							{
								Name: "2010BB",
								Segments: []SegmentUse{
									{ID: "NM1", Required: true, Max: 1},
								},
							},
							{
								Name: "2300",
								Segments: []SegmentUse{
									{ID: "CLM", Required: true, Max: 1},
									{ID: "REF", Max: 4},
									{ID: "HI", Required: true, Max: 1},
								},
								Loops: []LoopDef{
									{
										Name: "2400",
										Segments: []SegmentUse{
											{ID: "LX", Required: true, Max: 1},
											{ID: "SV1", Required: true, Max: 1},
											{ID: "DTP", Required: true, Max: 1},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

// Usage audits emitted segment tallies for one loop instance against the
// definition. Keys are loop-qualified segment identifiers ("2300/CLM").
type Usage map[string]int

// Record tallies one emitted segment.
func (u Usage) Record(loop, segmentID string) {
	u[loop+"/"+segmentID]++
}

// Check walks the definition and verifies every required segment was emitted
// and no maximum was exceeded. loopCounts carries how many instances of each
// loop were opened; a loop with zero instances is skipped entirely.
func (u Usage) Check(def LoopDef, loopCounts map[string]int) error {
	instances := loopCounts[def.Name]
	if instances == 0 {
		return nil
	}
	for _, s := range def.Segments {
		n := u[def.Name+"/"+s.ID]
		if s.Required && n < instances {
			return fmt.Errorf("loop %s: required segment %s emitted %d times for %d instances",
				def.Name, s.ID, n, instances)
		}
		if s.Max > 0 && n > s.Max*instances {
			return fmt.Errorf("loop %s: segment %s emitted %d times, maximum %d per instance",
				def.Name, s.ID, n, s.Max)
		}
	}
	for _, child := range def.Loops {
		if err := u.Check(child, loopCounts); err != nil {
			return err
		}
	}
	return nil
}

// RefPair is one REF segment a companion guide adds at the claim level.
type RefPair struct {
	Qualifier string
	Value     string
}

// CompanionProfile captures a payer's deviations from the base guide as
// configuration. Base-guide behavior is the zero value.
type CompanionProfile struct {
	Name string
	// RequireProviderTaxonomy adds PRV*BI*PXC in loop 2000A.
	RequireProviderTaxonomy bool
	// PatientAccountPrefix is prepended to CLM01.
	PatientAccountPrefix string
	// ExtraClaimRefs are appended as REF segments in loop 2300.
	ExtraClaimRefs []RefPair
	// FrequencyCode overrides CLM05-3; empty means original claim ("1").
	FrequencyCode string
}

// Frequency returns the effective CLM05-3 value.
func (p CompanionProfile) Frequency() string {
	if p.FrequencyCode == "" {
		return "1"
	}
	return p.FrequencyCode
}
