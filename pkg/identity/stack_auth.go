package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bavena95/mode-app/pkg/apperrors"
	log "github.com/sirupsen/logrus"
)

// StackAuthVerifier resolves a credential through the Stack Auth users/me endpoint.
// It does not retry; callers re-present credentials on failure.
type StackAuthVerifier struct {
	baseURL   string
	projectID string
	secretKey string
	http      *http.Client
}

func NewStackAuthVerifier(baseURL, projectID, secretKey string, timeout time.Duration) *StackAuthVerifier {
	return &StackAuthVerifier{
		baseURL:   baseURL,
		projectID: projectID,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

type stackUser struct {
	ID              string  `json:"id"`
	PrimaryEmail    *string `json:"primary_email"`
	Email           *string `json:"email"`
	Username        *string `json:"username"`
	DisplayName     *string `json:"display_name"`
	ProfileImageURL *string `json:"profile_image_url"`
}

func (v *StackAuthVerifier) Verify(ctx context.Context, credential string) (*ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/v1/users/me", nil)
	if err != nil {
		return nil, apperrors.NewAuthError(err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("X-Stack-Access-Token", credential)
	req.Header.Set("X-Stack-Project-Id", v.projectID)
	req.Header.Set("X-Stack-Access-Type", "server")
	if v.secretKey != "" {
		req.Header.Set("X-Stack-Secret-Server-Key", v.secretKey)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		log.Warnf("StackAuthVerifier.Verify: identity service unreachable: %v", err)
		return nil, apperrors.NewAuthError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debugf("StackAuthVerifier.Verify: identity service answered %d", resp.StatusCode)
		return nil, apperrors.NewAuthError(fmt.Errorf("identity service answered %d", resp.StatusCode))
	}

	var user stackUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, apperrors.NewAuthError(fmt.Errorf("malformed identity response: %w", err))
	}
	if user.ID == "" {
		return nil, apperrors.NewAuthError(fmt.Errorf("identity response carried no user id"))
	}

	email := user.PrimaryEmail
	if email == nil {
		email = user.Email
	}
	return &ExternalIdentity{
		ID:          user.ID,
		Email:       email,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.ProfileImageURL,
	}, nil
}
