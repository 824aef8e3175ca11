package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrDuplicateFile means a file with this ID was already stored. The store is
// write-once; a generated interchange is audit evidence and never mutated.
var ErrDuplicateFile = errors.New("generated file already stored")

// GeneratedFile is one stored 837P interchange with the identifiers needed to
// correlate payer responses back to its claims.
type GeneratedFile struct {
	FileID             string
	SenderID           string
	ReceiverID         string
	InterchangeControl int64
	GroupControl       int64
	ClaimIDs           []string
	Data               []byte
	CreatedAt          time.Time
}

// FileStore persists generated interchanges.
type FileStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewFileStore creates a generated-file store.
func NewFileStore(pool *pgxpool.Pool, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{pool: pool, logger: logger}
}

// Save inserts the file. A primary key conflict returns ErrDuplicateFile.
func (s *FileStore) Save(ctx context.Context, f *GeneratedFile) error {
	query := `
		INSERT INTO generated_files
			(file_id, sender_id, receiver_id, interchange_control, group_control, claim_ids, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err := s.pool.Exec(ctx, query,
		f.FileID, f.SenderID, f.ReceiverID,
		f.InterchangeControl, f.GroupControl, f.ClaimIDs, f.Data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateFile
		}
		return fmt.Errorf("save generated file %s: %w", f.FileID, err)
	}

	s.logger.Info("generated file stored",
		zap.String("file_id", f.FileID),
		zap.Int64("interchange_control", f.InterchangeControl),
		zap.Int("claims", len(f.ClaimIDs)),
		zap.Int("bytes", len(f.Data)))
	return nil
}

// Get loads one file by ID, or nil when absent.
func (s *FileStore) Get(ctx context.Context, fileID string) (*GeneratedFile, error) {
	query := `
		SELECT file_id, sender_id, receiver_id, interchange_control, group_control, claim_ids, data, created_at
		FROM generated_files
		WHERE file_id = $1
	`
	f := &GeneratedFile{}
	err := s.pool.QueryRow(ctx, query, fileID).Scan(
		&f.FileID, &f.SenderID, &f.ReceiverID,
		&f.InterchangeControl, &f.GroupControl, &f.ClaimIDs, &f.Data, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generated file %s: %w", fileID, err)
	}
	return f, nil
}

// FindByGroupControl resolves the file a 999 refers to via the echoed
// functional group control number. Control numbers wrap, so the newest match
// wins.
func (s *FileStore) FindByGroupControl(ctx context.Context, senderID string, groupControl int64) (*GeneratedFile, error) {
	query := `
		SELECT file_id, sender_id, receiver_id, interchange_control, group_control, claim_ids, data, created_at
		FROM generated_files
		WHERE sender_id = $1 AND group_control = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	f := &GeneratedFile{}
	err := s.pool.QueryRow(ctx, query, senderID, groupControl).Scan(
		&f.FileID, &f.SenderID, &f.ReceiverID,
		&f.InterchangeControl, &f.GroupControl, &f.ClaimIDs, &f.Data, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file by group control %d: %w", groupControl, err)
	}
	return f, nil
}
