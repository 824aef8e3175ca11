package billing

import "time"

// Period is one claim's billing period, inclusive on both ends.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a service date falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// TimeEntry is one validated visit record, already OCR-extracted and
// normalized upstream.
type TimeEntry struct {
	ID            string
	PatientID     string
	EmployeeID    string
	ProcedureCode string
	Modifiers     []string
	ServiceDate   time.Time
	Minutes       int
}

// Patient carries the member demographics the claim envelope needs.
type Patient struct {
	ID        string
	MemberID  string
	LastName  string
	FirstName string
	BirthDate time.Time
	Gender    string
	Address1  string
	City      string
	State     string
	Zip       string
}

// Authorization is one service authorization linking a patient and procedure
// to a contracted rate for a date range.
type Authorization struct {
	ID             string
	PatientID      string
	PayerID        string
	ProcedureCode  string
	RateCents      int64
	DiagnosisCodes []string
	Start          time.Time
	End            time.Time
}

// Covers reports whether the authorization covers a procedure on a date.
func (a Authorization) Covers(procedureCode string, date time.Time) bool {
	return a.ProcedureCode == procedureCode && !date.Before(a.Start) && !date.After(a.End)
}

// FindAuthorization returns the first authorization covering the given
// procedure/date combination, or nil.
func FindAuthorization(auths []Authorization, procedureCode string, date time.Time) *Authorization {
	for i := range auths {
		if auths[i].Covers(procedureCode, date) {
			return &auths[i]
		}
	}
	return nil
}
