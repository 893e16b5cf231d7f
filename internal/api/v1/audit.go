package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/warden/internal/domain"
)

type ListAuditInput struct {
	PlanID      string `query:"plan_id" doc:"Filter by plan id"`
	JTI         string `query:"jti" doc:"Filter by token id"`
	PrincipalID string `query:"principal_id" doc:"Filter by principal"`
	Kind        string `query:"kind" doc:"Filter by event kind"`
}

type ListAuditOutput struct {
	Body struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
}

type VerifyAuditOutput struct {
	Body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
}

// RegisterAuditRoutes mounts the read-only audit export boundary.
func RegisterAuditRoutes(api huma.API, ledger domain.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit entries in append order",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ListAuditInput) (*ListAuditOutput, error) {
		filter := domain.AuditFilter{
			JTI:         input.JTI,
			PrincipalID: input.PrincipalID,
			Kind:        domain.EventKind(input.Kind),
		}
		if input.PlanID != "" {
			planID, err := uuid.Parse(input.PlanID)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity("invalid plan_id")
			}
			filter.PlanID = planID
		}

		entries, err := ledger.List(ctx, filter)
		if err != nil {
			return nil, huma.Error500InternalServerError("audit listing failed", err)
		}

		out := &ListAuditOutput{}
		out.Body.Entries = entries
		if out.Body.Entries == nil {
			out.Body.Entries = []domain.AuditEntry{}
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-audit-chain",
		Method:      http.MethodGet,
		Path:        "/audit/verify",
		Summary:     "Recompute the full hash chain for tamper detection",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, _ *struct{}) (*VerifyAuditOutput, error) {
		out := &VerifyAuditOutput{}
		if err := ledger.VerifyChain(ctx); err != nil {
			out.Body.OK = false
			out.Body.Error = err.Error()
			return out, nil
		}
		out.Body.OK = true
		return out, nil
	})
}
