package testutil

import (
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/middleware"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
	"github.com/stretchr/testify/require"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, issuer string, role models.Role) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Role: string(role),
		},
	}
}

// MockAuth simulates the Auth0 JWT middleware. It sets up the context exactly
// as EnsureValidToken does.
func MockAuth(subject string, role models.Role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, subject)
		c.Set(middleware.AccessTokenKey, accessToken)
		c.Set(middleware.ClaimsKey, MockValidatedClaims(subject, "https://test.auth0.com/", role))
		c.Next()
	}
}

// ActingAs authenticates every request as user, skipping token validation
// and the principal lookup
func ActingAs(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, user.AuthSubject)
		c.Set(middleware.PrincipalKey, user)
		c.Next()
	}
}

// BearerFor issues a local access token for user
func BearerFor(t *testing.T, tokens *services.TokenService, user *models.User) string {
	t.Helper()
	token, _, err := tokens.Issue(user)
	require.NoError(t, err, "Failed to issue test token")
	return "Bearer " + token
}
