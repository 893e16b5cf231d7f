package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Plan is a proposed unit of work: one action with concrete parameters,
// captured before any authorization decision. Immutable once captured; a
// retry produces a new Plan, never a mutation of an old one.
type Plan struct {
	ID          uuid.UUID      `json:"id"`
	PrincipalID string         `json:"principal_id"`
	Action      string         `json:"action"`
	Parameters  map[string]any `json:"parameters"`
	Context     string         `json:"context,omitempty"` // free-form rationale, never used for authorization
	CapturedAt  time.Time      `json:"captured_at"`
}

type PlanRepository interface {
	Create(ctx context.Context, p *Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Plan, error)
}
