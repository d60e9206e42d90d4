package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// BuildSessionClaims assembles the session payload for an account. It is pure:
// the same account and time always produce the same claims apart from the JTI.
func BuildSessionClaims(account *models.Account, now time.Time, ttl time.Duration, issuer string) *models.SessionClaims {
	roles := make([]string, len(account.Roles))
	copy(roles, account.Roles)

	return &models.SessionClaims{
		UserID:         account.ID,
		Email:          account.Email,
		Roles:          roles,
		DisplayName:    account.DisplayName,
		Gender:         account.Gender,
		Preference:     account.Preference,
		SessionVersion: account.SessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    issuer,
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

// SessionIssuer signs and parses session tokens
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSessionIssuer creates a new SessionIssuer
func NewSessionIssuer(secret string, ttl time.Duration, issuer string) *SessionIssuer {
	return &SessionIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs a session token for account and returns it with its payload
func (si *SessionIssuer) Issue(account *models.Account) (string, *models.SessionClaims, error) {
	if account == nil || account.ID == "" {
		return "", nil, fmt.Errorf("cannot issue session for empty account")
	}

	claims := BuildSessionClaims(account, si.now(), si.ttl, si.issuer)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(si.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, claims, nil
}

// Parse verifies a token's signature, algorithm, issuer and expiry and returns its claims
func (si *SessionIssuer) Parse(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return si.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(si.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(si.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSessionInvalid, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, models.ErrSessionInvalid
	}

	return claims, nil
}
