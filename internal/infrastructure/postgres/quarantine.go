package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// QuarantinedFile is a payer response that could not be decoded. The raw
// bytes are kept intact for manual review; nothing from the file was applied
// to any claim.
type QuarantinedFile struct {
	ID         string
	Source     string
	Offset     int
	Reason     string
	Data       []byte
	ReceivedAt time.Time
}

// QuarantineStore persists malformed response files.
type QuarantineStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewQuarantineStore creates a quarantine store.
func NewQuarantineStore(pool *pgxpool.Pool, logger *zap.Logger) *QuarantineStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuarantineStore{pool: pool, logger: logger}
}

// Save stores one malformed file.
func (s *QuarantineStore) Save(ctx context.Context, f *QuarantinedFile) error {
	query := `
		INSERT INTO quarantined_files (id, source, byte_offset, reason, data, received_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query, f.ID, f.Source, f.Offset, f.Reason, f.Data)
	if err != nil {
		return fmt.Errorf("quarantine file %s: %w", f.ID, err)
	}

	s.logger.Warn("response file quarantined",
		zap.String("id", f.ID),
		zap.String("source", f.Source),
		zap.Int("byte_offset", f.Offset),
		zap.String("reason", f.Reason))
	return nil
}

// Pending returns quarantined files awaiting review, oldest first.
func (s *QuarantineStore) Pending(ctx context.Context, limit int) ([]*QuarantinedFile, error) {
	query := `
		SELECT id, source, byte_offset, reason, data, received_at
		FROM quarantined_files
		WHERE reviewed_at IS NULL
		ORDER BY received_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list quarantined files: %w", err)
	}
	defer rows.Close()

	var files []*QuarantinedFile
	for rows.Next() {
		f := &QuarantinedFile{}
		if err := rows.Scan(&f.ID, &f.Source, &f.Offset, &f.Reason, &f.Data, &f.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan quarantined file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
