package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/warden/internal/domain"
	"github.com/gosuda/warden/internal/enforce"
	"github.com/gosuda/warden/internal/server/middleware"
)

type InvokeInput struct {
	Body struct {
		IntentToken string         `json:"intent_token" minLength:"1" doc:"Token minted for this exact action and parameter set"` //nolint:gosec // G117: capability request DTO
		Action      string         `json:"action" minLength:"1" maxLength:"255" doc:"Action to execute; must equal the token's action"`
		Parameters  map[string]any `json:"parameters" doc:"Arguments to execute with; must digest-match the token"`
	}
}

type InvokeOutput struct {
	Body struct {
		Status string `json:"status"`
		Result any    `json:"result,omitempty"`
	}
}

// RegisterInvokeRoutes mounts the token presentation boundary: the only path
// to a mutating effect on the managed resource. The enforcement point runs
// first; the effect runs only on a VERIFY_OK, and its outcome is recorded
// either way.
func RegisterInvokeRoutes(api huma.API, authorizer Authorizer, executor Executor, ledger domain.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "invoke-action",
		Method:      http.MethodPost,
		Path:        "/invoke",
		Summary:     "Present an intent token and execute its bound action",
		Tags:        []string{"Invoke"},
	}, func(ctx context.Context, input *InvokeInput) (*InvokeOutput, error) {
		principal, ok := middleware.PrincipalFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		verdict, err := authorizer.Authorize(ctx, input.Body.IntentToken, principal.ID, input.Body.Action, input.Body.Parameters)
		if err != nil {
			// Enforcement machinery failure (audit or replay store down):
			// fail closed.
			return nil, huma.Error503ServiceUnavailable("enforcement unavailable", err)
		}
		if !verdict.OK {
			if verdict.Reason == enforce.ReasonReplayDetected {
				return nil, huma.Error403Forbidden("replay detected: token already consumed")
			}
			return nil, huma.Error403Forbidden("token rejected: " + verdict.Reason)
		}

		// The token is consumed regardless of what happens next; a failed
		// execution is a downstream concern, not a reason to retry with the
		// same token.
		result, execErr := executor.Execute(principal.ID, input.Body.Action, input.Body.Parameters)

		entry := domain.AuditEntry{
			PlanID:      verdict.Claims.PlanID,
			JTI:         verdict.Claims.JTI,
			PrincipalID: principal.ID,
		}
		if execErr != nil {
			entry.Kind = domain.EventExecuteFail
			entry.Detail = fmt.Sprintf("action=%s error=%s", input.Body.Action, execErr)
		} else {
			entry.Kind = domain.EventExecute
			entry.Detail = fmt.Sprintf("action=%s", input.Body.Action)
		}
		if _, auditErr := ledger.Append(ctx, entry); auditErr != nil {
			// The effect already ran; all that is left is to refuse to
			// pretend this was a clean cycle.
			log.Error().Err(auditErr).Str("jti", verdict.Claims.JTI).Msg("audit append failed after execution")
			return nil, huma.Error500InternalServerError("execution outcome could not be audited", auditErr)
		}

		if execErr != nil {
			return nil, huma.Error502BadGateway("execution failed", execErr)
		}

		out := &InvokeOutput{}
		out.Body.Status = "success"
		out.Body.Result = result
		return out, nil
	})
}
