package services

import (
	"context"

	"github.com/bavena95/mode-app/pkg/apperrors"
	"github.com/bavena95/mode-app/pkg/identity"
)

// SessionVerifier accepts session tokens locally and hands every other
// credential to next.
type SessionVerifier struct {
	tokens *TokenService
	next   identity.Verifier
}

func NewSessionVerifier(tokens *TokenService, next identity.Verifier) *SessionVerifier {
	return &SessionVerifier{tokens: tokens, next: next}
}

// Verify yields only the external id for session tokens; profile fields stay
// absent so a sync never overwrites them.
func (v *SessionVerifier) Verify(ctx context.Context, credential string) (*identity.ExternalIdentity, error) {
	if !v.tokens.IsSessionToken(credential) {
		return v.next.Verify(ctx, credential)
	}
	claims, err := v.tokens.ValidateToken(credential)
	if err != nil {
		return nil, apperrors.NewAuthError(err)
	}
	return &identity.ExternalIdentity{ID: claims.ExternalID}, nil
}
