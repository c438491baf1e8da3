package services

import (
	"fmt"
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TokenIssuer is the iss claim of every session token this service signs.
const TokenIssuer = "mode-app"

// Claims is the session token payload.
type Claims struct {
	UserID     uuid.UUID `json:"user_id"`
	ExternalID string    `json:"external_id"`
	jwt.RegisteredClaims
}

// TokenService signs and validates session tokens.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	expiry time.Duration
	now    func() time.Time
}

func NewTokenService(secret, algorithm string, expiry time.Duration) (*TokenService, error) {
	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported session token algorithm %q", algorithm)
	}
	return &TokenService{secret: []byte(secret), method: method, expiry: expiry, now: time.Now}, nil
}

// GenerateToken issues a session token for user and returns it with its expiry.
func (s *TokenService) GenerateToken(user *db.User) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.expiry)

	claims := &Claims{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Issuer:    TokenIssuer,
			Subject:   user.ID.String(),
		},
	}

	tokenString, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		log.Errorf("Failed to sign session token for user %s: %v", user.ID.String(), err)
		return "", time.Time{}, err
	}

	log.Debugf("Generated session token for user %s, expires at %s", user.ID.String(), expiresAt.Format(time.RFC3339))
	return tokenString, expiresAt, nil
}

// ValidateToken checks signature, algorithm, issuer and expiry.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		log.Debugf("Session token validation failed: %v", err)
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.ExternalID == "" {
		return nil, fmt.Errorf("session token carries no external id")
	}
	return claims, nil
}

// IsSessionToken reports whether tokenString claims to be one of ours. It does
// not verify anything.
func (s *TokenService) IsSessionToken(tokenString string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	return claims.Issuer == TokenIssuer
}
