// Package identity verifies bearer credentials against the external identity provider.
package identity

import "context"

// ExternalIdentity is a verified caller. Profile fields are nil when the
// provider did not supply them.
type ExternalIdentity struct {
	ID          string  `json:"id"`
	Email       *string `json:"email,omitempty"`
	Username    *string `json:"username,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// Verifier validates a credential. Failures are *apperrors.Error of kind auth.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*ExternalIdentity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, credential string) (*ExternalIdentity, error)

func (f VerifierFunc) Verify(ctx context.Context, credential string) (*ExternalIdentity, error) {
	return f(ctx, credential)
}

// Value returns the string behind p, or "" when it is nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
