package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
)

// TemplateRecord is the durable row for an uploaded reference template.
type TemplateRecord struct {
	ID          string
	Name        string
	Description string
	SHA256      string
	BLAKE3      string
	Size        int64
	Default     bool
	UploadedAt  time.Time
}

const templateColumns = `id, name, description, sha256, blake3, size, is_default, uploaded_at`

// InsertTemplate stores a new template. When rec.Default is set every other
// template loses its default flag in the same transaction.
func (s *DB) InsertTemplate(ctx context.Context, rec *TemplateRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if rec.Default {
		if _, err := tx.ExecContext(ctx, `UPDATE templates SET is_default = 0`); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Description, rec.SHA256, rec.BLAKE3, rec.Size,
		boolInt(rec.Default), formatTime(rec.UploadedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}
	return tx.Commit()
}

// SetDefaultTemplate makes id the only default template.
func (s *DB) SetDefaultTemplate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE templates SET is_default = 0`); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE templates SET is_default = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("template", id)
	}
	return tx.Commit()
}

// GetTemplate returns the template with the given id.
func (s *DB) GetTemplate(ctx context.Context, id string) (*TemplateRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	rec, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("template", id)
	}
	return rec, err
}

// FindTemplateBySHA256 returns the template whose content has the given
// digest, or a NotFoundError.
func (s *DB) FindTemplateBySHA256(ctx context.Context, sha string) (*TemplateRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE sha256 = ?`, sha)
	rec, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("template", sha)
	}
	return rec, err
}

// DefaultTemplate returns the template flagged as default, or a NotFoundError.
func (s *DB) DefaultTemplate(ctx context.Context) (*TemplateRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE is_default = 1 LIMIT 1`)
	rec, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("template", "default")
	}
	return rec, err
}

// ListTemplates returns all templates, oldest first.
func (s *DB) ListTemplates(ctx context.Context) ([]*TemplateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY uploaded_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TemplateRecord
	for rows.Next() {
		rec, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteTemplate removes the template row.
func (s *DB) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("template", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*TemplateRecord, error) {
	var (
		rec      TemplateRecord
		def      int
		uploaded string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.SHA256, &rec.BLAKE3, &rec.Size, &def, &uploaded); err != nil {
		return nil, err
	}
	t, err := parseTime(uploaded)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", rec.ID, err)
	}
	rec.Default = def != 0
	rec.UploadedAt = t
	return &rec, nil
}
