package service

import (
	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

// AuthorizationPolicy centralizes the admin/non-admin branching used by the
// edit router, the approval workflow and the freeze gate. Handlers and
// services consult this one policy instead of re-checking roles per call site.
type AuthorizationPolicy struct{}

// NewAuthorizationPolicy constructs the policy.
func NewAuthorizationPolicy() *AuthorizationPolicy {
	return &AuthorizationPolicy{}
}

// CanEditDirect reports whether the actor may mutate the schedule without
// going through the approval workflow.
func (p *AuthorizationPolicy) CanEditDirect(actor *models.JWTClaims) bool {
	return actor.IsAdmin()
}

// CanReview reports whether the actor may approve or reject proposed changes.
func (p *AuthorizationPolicy) CanReview(actor *models.JWTClaims) bool {
	return actor.IsAdmin()
}

// CanPropose reports whether the actor may raise change proposals. Any
// authenticated school role may.
func (p *AuthorizationPolicy) CanPropose(actor *models.JWTClaims) bool {
	return actor != nil
}

// CanToggleFreeze reports whether the actor may flip the freeze gate.
func (p *AuthorizationPolicy) CanToggleFreeze(actor *models.JWTClaims) bool {
	return actor.IsAdmin()
}

// RequireActor normalises a missing actor into an unauthorized error.
func RequireActor(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	return nil
}
