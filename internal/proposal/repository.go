package proposal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrNotFound = errors.New("proposal not found")

// Store is the owner-scoped persistence the handler depends on.
type Store interface {
	List(ctx context.Context, ownerID int64) ([]Proposal, error)
	Get(ctx context.Context, ownerID, id int64) (Proposal, error)
	Create(ctx context.Context, ownerID int64, input ProposalInput) (Proposal, error)
	Update(ctx context.Context, ownerID, id int64, input ProposalInput) (Proposal, error)
	Delete(ctx context.Context, ownerID, id int64) error
	Stats(ctx context.Context, ownerID int64) (Stats, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const proposalColumns = `id, owner_id, client_name, platform, project_title, project_link, amount, currency, status, notes, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (Proposal, error) {
	var p Proposal
	var link, notes sql.NullString
	if err := row.Scan(&p.ID, &p.OwnerID, &p.ClientName, &p.Platform, &p.ProjectTitle, &link, &p.Amount, &p.Currency, &p.Status, &notes, &p.CreatedAt); err != nil {
		return Proposal{}, err
	}
	if link.Valid {
		p.ProjectLink = &link.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context, ownerID int64) ([]Proposal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}

	return proposals, nil
}

func (r *Repository) Get(ctx context.Context, ownerID, id int64) (Proposal, error) {
	p, err := scanProposal(r.db.QueryRowContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, fmt.Errorf("query proposal: %w", err)
	}

	return p, nil
}

func (r *Repository) Create(ctx context.Context, ownerID int64, input ProposalInput) (Proposal, error) {
	p, err := scanProposal(r.db.QueryRowContext(ctx, `
		INSERT INTO proposals (owner_id, client_name, platform, project_title, project_link, amount, currency, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+proposalColumns,
		ownerID, input.ClientName, input.Platform, input.ProjectTitle, input.ProjectLink,
		input.Amount, input.Currency, input.Status, input.Notes, time.Now().UTC()))
	if err != nil {
		return Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, ownerID, id int64, input ProposalInput) (Proposal, error) {
	p, err := scanProposal(r.db.QueryRowContext(ctx, `
		UPDATE proposals
		SET client_name = $3, platform = $4, project_title = $5, project_link = $6,
			amount = $7, currency = $8, status = $9, notes = $10
		WHERE id = $1 AND owner_id = $2
		RETURNING `+proposalColumns,
		id, ownerID, input.ClientName, input.Platform, input.ProjectTitle, input.ProjectLink,
		input.Amount, input.Currency, input.Status, input.Notes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, fmt.Errorf("update proposal: %w", err)
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) Stats(ctx context.Context, ownerID int64) (Stats, error) {
	var total, accepted, rejected int64
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(id),
			COALESCE(SUM(CASE WHEN status = $2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = $3 THEN 1 ELSE 0 END), 0)
		FROM proposals
		WHERE owner_id = $1
	`, ownerID, StatusAccepted, StatusRejected).Scan(&total, &accepted, &rejected)
	if err != nil {
		return Stats{}, fmt.Errorf("query proposal stats: %w", err)
	}

	return BuildStats(total, accepted, rejected), nil
}

// BuildStats derives pending and the conversion rate, rounded to two decimals.
func BuildStats(total, accepted, rejected int64) Stats {
	pending := total - accepted - rejected
	if pending < 0 {
		pending = 0
	}

	var conversion float64
	if total > 0 {
		conversion = math.Round(float64(accepted)/float64(total)*100*100) / 100
	}

	return Stats{
		Total:             total,
		Accepted:          accepted,
		Rejected:          rejected,
		Pending:           pending,
		ConversionPercent: conversion,
	}
}
