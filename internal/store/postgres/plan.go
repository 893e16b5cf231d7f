package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/warden/internal/domain"
)

type PlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

func (r *PlanRepo) Create(ctx context.Context, p *domain.Plan) error {
	params, err := json.Marshal(p.Parameters)
	if err != nil {
		return fmt.Errorf("planRepo.Create: marshal parameters: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO plans (id, principal_id, action, parameters, context, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PrincipalID, p.Action, params, p.Context, p.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("planRepo.Create: %w", err)
	}

	return nil
}

func (r *PlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	var p domain.Plan
	var params []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, principal_id, action, parameters, context, captured_at
		 FROM plans WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.PrincipalID, &p.Action, &params, &p.Context, &p.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("planRepo.GetByID: %w", err)
	}

	if err := json.Unmarshal(params, &p.Parameters); err != nil {
		return nil, fmt.Errorf("planRepo.GetByID: unmarshal parameters: %w", err)
	}

	return &p, nil
}
