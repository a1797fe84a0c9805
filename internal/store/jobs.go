package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
)

// JobRecord is the durable row for a conversion job.
type JobRecord struct {
	ID         string
	Status     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	FinishedAt time.Time

	SourceRef  string
	OutputRef  string
	TemplateID string
	Filename   string
	Raw        bool
	Styles     string

	ClaimToken   string
	InputBytes   int64
	OutputBytes  int64
	ProcessingMS int64

	ErrorStage   string
	ErrorCode    string
	ErrorMessage string
}

const jobColumns = `id, status, created_at, expires_at, finished_at, source_ref, output_ref,
	template_id, filename, raw, styles, claim_token, input_bytes, output_bytes,
	processing_ms, error_stage, error_code, error_message`

// InsertJob stores a new job record.
func (s *DB) InsertJob(ctx context.Context, rec *JobRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Status, formatTime(rec.CreatedAt), formatTime(rec.ExpiresAt), formatTime(rec.FinishedAt),
		rec.SourceRef, rec.OutputRef, rec.TemplateID, rec.Filename, boolInt(rec.Raw), rec.Styles,
		rec.ClaimToken, rec.InputBytes, rec.OutputBytes, rec.ProcessingMS,
		rec.ErrorStage, rec.ErrorCode, rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given id.
func (s *DB) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("job", id)
	}
	return rec, err
}

// UpdateJob writes the mutable fields of rec, but only while the stored row
// still has status fromStatus and claim token fromToken. It is the single
// compare-and-set primitive behind every job transition: a lost race returns
// a ConflictError and changes nothing.
func (s *DB) UpdateJob(ctx context.Context, rec *JobRecord, fromStatus, fromToken string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, output_ref = ?, claim_token = ?,
			output_bytes = ?, processing_ms = ?, error_stage = ?, error_code = ?, error_message = ?
		WHERE id = ? AND status = ? AND claim_token = ?`,
		rec.Status, formatTime(rec.FinishedAt), rec.OutputRef, rec.ClaimToken,
		rec.OutputBytes, rec.ProcessingMS, rec.ErrorStage, rec.ErrorCode, rec.ErrorMessage,
		rec.ID, fromStatus, fromToken,
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	current, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		return err
	}
	return &errors.ConflictError{
		Resource: "job",
		ID:       rec.ID,
		Reason:   fmt.Sprintf("status is %s, expected %s", current.Status, fromStatus),
	}
}

// ListJobs returns jobs whose status is one of statuses (all jobs when none
// are given), oldest first.
func (s *DB) ListJobs(ctx context.Context, statuses ...string) ([]*JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",") + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListDueJobs returns jobs whose expiry is at or before now and that are in
// one of statuses.
func (s *DB) ListDueJobs(ctx context.Context, now time.Time, statuses ...string) ([]*JobRecord, error) {
	all, err := s.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	var due []*JobRecord
	for _, j := range all {
		if !now.Before(j.ExpiresAt) {
			due = append(due, j)
		}
	}
	return due, nil
}

func scanJob(row scanner) (*JobRecord, error) {
	var (
		rec                        JobRecord
		created, expires, finished string
		raw                        int
	)
	err := row.Scan(&rec.ID, &rec.Status, &created, &expires, &finished, &rec.SourceRef, &rec.OutputRef,
		&rec.TemplateID, &rec.Filename, &raw, &rec.Styles, &rec.ClaimToken, &rec.InputBytes,
		&rec.OutputBytes, &rec.ProcessingMS, &rec.ErrorStage, &rec.ErrorCode, &rec.ErrorMessage)
	if err != nil {
		return nil, err
	}
	rec.Raw = raw != 0
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("job %s: %w", rec.ID, err)
	}
	if rec.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, fmt.Errorf("job %s: %w", rec.ID, err)
	}
	if rec.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("job %s: %w", rec.ID, err)
	}
	return &rec, nil
}
