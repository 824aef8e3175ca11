package billing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecords reads time entries and service authorizations. The records
// are owned by the upstream intake system; this side is read-only.
type PostgresRecords struct {
	pool *pgxpool.Pool
}

// NewPostgresRecords creates a record source backed by the given pool.
func NewPostgresRecords(pool *pgxpool.Pool) *PostgresRecords {
	return &PostgresRecords{pool: pool}
}

// TimeEntries returns the patient's entries within the billing period.
func (r *PostgresRecords) TimeEntries(ctx context.Context, patientID string, period Period) ([]TimeEntry, error) {
	query := `
		SELECT id, patient_id, employee_id, procedure_code, modifiers, service_date, minutes
		FROM time_entries
		WHERE patient_id = $1
		  AND service_date BETWEEN $2 AND $3
		ORDER BY service_date ASC, procedure_code ASC
	`

	rows, err := r.pool.Query(ctx, query, patientID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("query time entries: %w", err)
	}
	defer rows.Close()

	var entries []TimeEntry
	for rows.Next() {
		var e TimeEntry
		if err := rows.Scan(&e.ID, &e.PatientID, &e.EmployeeID, &e.ProcedureCode,
			&e.Modifiers, &e.ServiceDate, &e.Minutes); err != nil {
			return nil, fmt.Errorf("scan time entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Patient returns the member demographics for one patient.
func (r *PostgresRecords) Patient(ctx context.Context, patientID string) (*Patient, error) {
	query := `
		SELECT id, member_id, last_name, first_name, birth_date, gender, address1, city, state, zip
		FROM patients
		WHERE id = $1
	`

	p := &Patient{}
	err := r.pool.QueryRow(ctx, query, patientID).Scan(
		&p.ID, &p.MemberID, &p.LastName, &p.FirstName, &p.BirthDate,
		&p.Gender, &p.Address1, &p.City, &p.State, &p.Zip)
	if err != nil {
		return nil, fmt.Errorf("query patient %s: %w", patientID, err)
	}
	return p, nil
}

// Authorizations returns the patient's authorizations for one payer.
func (r *PostgresRecords) Authorizations(ctx context.Context, patientID, payerID string) ([]Authorization, error) {
	query := `
		SELECT id, patient_id, payer_id, procedure_code, rate_cents, diagnosis_codes, start_date, end_date
		FROM service_authorizations
		WHERE patient_id = $1
		  AND payer_id = $2
		ORDER BY start_date ASC
	`

	rows, err := r.pool.Query(ctx, query, patientID, payerID)
	if err != nil {
		return nil, fmt.Errorf("query authorizations: %w", err)
	}
	defer rows.Close()

	var auths []Authorization
	for rows.Next() {
		var a Authorization
		if err := rows.Scan(&a.ID, &a.PatientID, &a.PayerID, &a.ProcedureCode,
			&a.RateCents, &a.DiagnosisCodes, &a.Start, &a.End); err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		auths = append(auths, a)
	}
	return auths, rows.Err()
}
