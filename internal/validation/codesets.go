package validation

// PlaceOfServiceHome is the place-of-service code for services rendered in
// the patient's home; the only setting this subsystem bills.
const PlaceOfServiceHome = "12"

// CodeSets holds the configured reference tables. Membership is exact-match;
// normalizing case and punctuation is the upstream intake's job.
type CodeSets struct {
	Procedure      map[string]struct{}
	Diagnosis      map[string]struct{}
	PlaceOfService map[string]struct{}
}

// NewCodeSets builds reference tables from code lists.
func NewCodeSets(procedure, diagnosis, placeOfService []string) CodeSets {
	return CodeSets{
		Procedure:      toSet(procedure),
		Diagnosis:      toSet(diagnosis),
		PlaceOfService: toSet(placeOfService),
	}
}

// HasProcedure reports procedure code membership.
func (c CodeSets) HasProcedure(code string) bool {
	_, ok := c.Procedure[code]
	return ok
}

// HasDiagnosis reports diagnosis code membership.
func (c CodeSets) HasDiagnosis(code string) bool {
	_, ok := c.Diagnosis[code]
	return ok
}

// HasPlaceOfService reports place-of-service code membership.
func (c CodeSets) HasPlaceOfService(code string) bool {
	_, ok := c.PlaceOfService[code]
	return ok
}

func toSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
