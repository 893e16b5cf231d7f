package domain

import (
	"time"

	"github.com/google/uuid"
)

// IntentToken is the capability artifact: a short-lived, single-use
// credential bound to exactly one action, one parameter set (by digest) and
// one principal. The signature over these fields is carried by the compact
// JWS encoding; this struct is the decoded claim set. PlanID links
// verification audit entries back to the plan the token was minted for.
type IntentToken struct {
	JTI              string    `json:"jti"`
	Sub              string    `json:"sub"`
	PlanID           uuid.UUID `json:"pln"`
	Action           string    `json:"act"`
	ParametersDigest string    `json:"pdg"`
	IssuedAt         time.Time `json:"iat"`
	ExpiresAt        time.Time `json:"exp"`
}
