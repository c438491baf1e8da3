package handlers

import (
	"net/http"
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/middleware"
	"github.com/bavena95/mode-app/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"stack_user_id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	FullName   string    `json:"full_name"`
	AvatarURL  string    `json:"avatar_url"`
	IsActive   bool      `json:"is_active"`
	IsPremium  bool      `json:"is_premium"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newUserResponse(u *db.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		ExternalID: u.ExternalID,
		Email:      u.Email,
		Username:   u.Username,
		FullName:   u.FullName,
		AvatarURL:  u.AvatarURL,
		IsActive:   u.IsActive,
		IsPremium:  u.IsPremium,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Me returns the authenticated user.
func (h *Handlers) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "User retrieved successfully", newUserResponse(user))
}

// SyncUser refreshes the local profile from the identity provider.
func (h *Handlers) SyncUser(c *gin.Context) {
	ident, ok := middleware.GetIdentityFromContext(c)
	if !ok {
		log.Error("SyncUser: identity not found in context.")
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: identity missing", nil)
		return
	}

	user, err := h.Users.Sync(c.Request.Context(), ident)
	if err != nil {
		utils.ResponseWithAppError(c, err)
		return
	}

	log.Infof("SyncUser: user %s synchronized", user.ID.String())
	utils.ResponseWithSuccess(c, http.StatusOK, "User synchronized successfully", newUserResponse(user))
}

// IssueToken exchanges the verified credential for a session token.
func (h *Handlers) IssueToken(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	token, expiresAt, err := h.Tokens.GenerateToken(user)
	if err != nil {
		log.Errorf("IssueToken: failed to issue token for user %s: %v", user.ID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication token", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Token issued successfully", TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

func currentUser(c *gin.Context) (*db.User, bool) {
	user, ok := middleware.GetUserFromContext(c)
	if !ok {
		log.Errorf("%s %s: user not found in context.", c.Request.Method, c.FullPath())
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: user not found", nil)
		return nil, false
	}
	return user, true
}
