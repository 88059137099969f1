// Package plans keeps the generated study plans of each user and a pointer
// to the plan they are currently working through.
package plans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ravigill3969/examly/backend/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound     = errors.New("plan not found")
	ErrInvalidInput = errors.New("invalid plan")
)

// Archive stores plan bodies outside the database.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type Store struct {
	db      *sql.DB
	archive Archive
	now     func() time.Time
}

// NewStore returns a plan store. With a nil archive, results are kept inline.
func NewStore(db *sql.DB, archive Archive) *Store {
	return &Store{db: db, archive: archive, now: time.Now}
}

func (s *Store) Save(ctx context.Context, userID, title string, result json.RawMessage) (*models.Plan, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled plan"
	}
	if len(result) == 0 || !json.Valid(result) {
		return nil, fmt.Errorf("%w: result must be valid JSON", ErrInvalidInput)
	}

	plan := &models.Plan{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Result:    result,
		CreatedAt: s.now().UTC(),
	}

	inline := sql.NullString{String: string(result), Valid: true}
	var archiveKey sql.NullString
	if s.archive != nil {
		plan.ArchiveKey = fmt.Sprintf("plans/%s/%s.json", userID, plan.ID)
		if err := s.archive.Put(ctx, plan.ArchiveKey, result); err != nil {
			return nil, fmt.Errorf("archive plan %s: %w", plan.ID, err)
		}
		inline = sql.NullString{}
		archiveKey = sql.NullString{String: plan.ArchiveKey, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (id, user_id, title, result, archive_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, plan.ID, userID, plan.Title, inline, archiveKey, plan.CreatedAt)
	if err != nil {
		if archiveKey.Valid {
			if delErr := s.archive.Delete(ctx, plan.ArchiveKey); delErr != nil {
				log.Warn().Err(delErr).Str("user_id", userID).Str("key", plan.ArchiveKey).Msg("failed to delete orphaned plan archive")
			}
		}
		return nil, fmt.Errorf("insert plan: %w", err)
	}
	return plan, nil
}

// List returns the user's plans, newest first, without their bodies.
func (s *Store) List(ctx context.Context, userID string) ([]models.PlanSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at FROM plans WHERE user_id = $1 ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	out := []models.PlanSummary{}
	for rows.Next() {
		var p models.PlanSummary
		if err := rows.Scan(&p.ID, &p.Title, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, userID, id string) (*models.Plan, error) {
	var (
		p          models.Plan
		result     sql.NullString
		archiveKey sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, result, archive_key, created_at FROM plans WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&p.ID, &p.UserID, &p.Title, &result, &archiveKey, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, err)
	}

	switch {
	case result.Valid:
		p.Result = json.RawMessage(result.String)
	case archiveKey.Valid && s.archive != nil:
		p.ArchiveKey = archiveKey.String
		body, err := s.archive.Get(ctx, archiveKey.String)
		if err != nil {
			return nil, fmt.Errorf("load archived plan %s: %w", id, err)
		}
		p.Result = body
	}
	return &p, nil
}

// Clear removes every plan of the user and resets the current pointer.
// Archived bodies are deleted best-effort after the rows are gone.
func (s *Store) Clear(ctx context.Context, userID string) error {
	var keys []string
	if s.archive != nil {
		rows, err := s.db.QueryContext(ctx, `SELECT archive_key FROM plans WHERE user_id = $1 AND archive_key IS NOT NULL`, userID)
		if err != nil {
			return fmt.Errorf("list archived plans: %w", err)
		}
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return fmt.Errorf("scan archive key: %w", err)
			}
			keys = append(keys, k)
		}
		rows.Close()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear plans: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete plans: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_current WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("reset current plan: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear plans: %w", err)
	}

	for _, k := range keys {
		if err := s.archive.Delete(ctx, k); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("key", k).Msg("failed to delete archived plan")
		}
	}
	return nil
}

// Current returns the id of the user's current plan, or "" when unset.
func (s *Store) Current(ctx context.Context, userID string) (string, error) {
	var planID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT plan_id FROM plan_current WHERE user_id = $1`, userID).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get current plan: %w", err)
	}
	return planID.String, nil
}

// SetCurrent points the user at planID; an empty id clears the pointer.
// The plan must belong to the user.
func (s *Store) SetCurrent(ctx context.Context, userID, planID string) error {
	if planID != "" {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM plans WHERE id = $1 AND user_id = $2`, planID, userID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check plan %s: %w", planID, err)
		}
	}

	value := sql.NullString{String: planID, Valid: planID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_current (user_id, plan_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET plan_id = excluded.plan_id, updated_at = excluded.updated_at
	`, userID, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("set current plan: %w", err)
	}
	return nil
}
