package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/warden/internal/intent"
	"github.com/gosuda/warden/internal/server/middleware"
)

type SubmitPlanInput struct {
	Body struct {
		Action     string         `json:"action" minLength:"1" maxLength:"255" doc:"Namespaced action verb, e.g. infra.restart"`
		Parameters map[string]any `json:"parameters" doc:"Exact arguments the action will execute with"`
		Context    string         `json:"context,omitempty" maxLength:"4096" doc:"Free-form rationale; never used for authorization"`
	}
}

type SubmitPlanOutput struct {
	Body struct {
		PlanID        uuid.UUID  `json:"plan_id"`
		Effect        string     `json:"effect"`
		MatchedRuleID string     `json:"matched_rule_id,omitempty"`
		Reason        string     `json:"reason"`
		IntentToken   string     `json:"intent_token,omitempty"` //nolint:gosec // G117: capability response DTO
		JTI           string     `json:"jti,omitempty"`
		ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	}
}

// RegisterPlanRoutes mounts the plan submission boundary. A deny is a
// successful submission with a structured refusal, not an HTTP error.
func RegisterPlanRoutes(api huma.API, tokens TokenService) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-plan",
		Method:      http.MethodPost,
		Path:        "/plans",
		Summary:     "Submit a plan for policy evaluation and token issuance",
		Tags:        []string{"Plans"},
	}, func(ctx context.Context, input *SubmitPlanInput) (*SubmitPlanOutput, error) {
		principal, ok := middleware.PrincipalFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		result, err := tokens.Submit(ctx, intent.SubmitRequest{
			Principal:  principal,
			Action:     input.Body.Action,
			Parameters: input.Body.Parameters,
			Context:    input.Body.Context,
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("plan submission failed", err)
		}

		out := &SubmitPlanOutput{}
		out.Body.PlanID = result.Plan.ID
		out.Body.Effect = string(result.Decision.Effect)
		out.Body.MatchedRuleID = result.Decision.MatchedRuleID
		out.Body.Reason = result.Decision.Reason
		if result.Claims != nil {
			out.Body.IntentToken = result.Token
			out.Body.JTI = result.Claims.JTI
			expires := result.Claims.ExpiresAt
			out.Body.ExpiresAt = &expires
		}
		return out, nil
	})
}
