package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eventhub/internal/model"
)

const eventColumns = `id, title, description, category, price, start_date, end_date,
		       status, max_participants, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e     model.Event
		limit sql.NullInt64
	)
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Category, &e.Price, &e.StartDate, &e.EndDate,
		&e.Status, &limit, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if limit.Valid {
		v := int(limit.Int64)
		e.MaxParticipants = &v
	}
	return &e, nil
}

func (r *repository) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.getProfile(ctx, `WHERE id = $1`, id)
}

func (r *repository) GetProfileByReferralCode(ctx context.Context, code string) (*model.Profile, error) {
	return r.getProfile(ctx, `WHERE referral_code = $1`, code)
}

func (r *repository) getProfile(ctx context.Context, where string, arg any) (*model.Profile, error) {
	query := `
		SELECT id, email, full_name, COALESCE(phone, ''), referral_code,
		       COALESCE(referred_by::text, ''), is_admin, created_at
		FROM profiles ` + where

	var p model.Profile
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Email, &p.FullName, &p.Phone, &p.ReferralCode, &p.ReferredBy, &p.IsAdmin, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	query := `
		INSERT INTO events (id, title, description, category, price, start_date, end_date, status, max_participants)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	var limit sql.NullInt64
	if e.MaxParticipants != nil {
		limit = sql.NullInt64{Int64: int64(*e.MaxParticipants), Valid: true}
	}

	if err := r.db.QueryRowContext(ctx, query,
		e.ID, e.Title, e.Description, e.Category, e.Price, e.StartDate, e.EndDate, e.Status, limit,
	).Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY start_date ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
