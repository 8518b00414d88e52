package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
	"go.uber.org/zap"
)

// Gin context keys shared with the controllers
const (
	UserIDKey      = "user_id"
	ClaimsKey      = "validated_claims"
	LocalClaimsKey = "local_claims"
	AccessTokenKey = "access_token"
	PrincipalKey   = "principal"
)

// CustomClaims contains custom data we want from the token. Role is a
// namespaced claim set by an Auth0 action from the role picked at sign-up.
type CustomClaims struct {
	Scope string `json:"scope"`
	Role  string `json:"https://usta-go-api/role"`
}

// Validate does nothing for this example, but we need
// it to satisfy validator.CustomClaims interface.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// LocalTokenParser verifies tokens minted by the login endpoint
type LocalTokenParser interface {
	Enabled() bool
	Parse(token string) (*services.LocalClaims, error)
}

// PrincipalResolver maps a token subject onto a stored user
type PrincipalResolver interface {
	Resolve(ctx context.Context, subject string) (*models.User, error)
}

// EnsureValidToken is a middleware that will check the validity of an Auth0 JWT.
func EnsureValidToken(cfg *config.Config) gin.HandlerFunc {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		logger.Log.Fatal("Failed to parse the issuer url", zap.Error(err))
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		logger.Log.Fatal("Failed to set up the jwt validator", zap.Error(err))
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Log.Info("Encountered error while validating JWT", zap.Error(err))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)); writeErr != nil {
			logger.Log.Warn("Failed to write error response", zap.Error(writeErr))
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			c.Set(UserIDKey, token.RegisteredClaims.Subject)
			c.Set(ClaimsKey, token)
			c.Set(AccessTokenKey, bearerToken(r))
			c.Request = r

			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !c.IsAborted() && c.Writer.Written() && c.Writer.Status() == http.StatusUnauthorized {
			c.Abort()
		}
	}
}

// EnsureLocalToken checks an HS256 token issued by the login endpoint
func EnsureLocalToken(tokens LocalTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.Request)
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Missing bearer token.")
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			logger.Log.Info("Encountered error while validating local JWT", zap.Error(err))
			abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Failed to validate JWT.")
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(LocalClaimsKey, claims)
		c.Set(AccessTokenKey, raw)
		c.Next()
	}
}

// Authenticate accepts a locally issued token when local auth is enabled and
// otherwise defers to Auth0. With neither configured every request is rejected.
func Authenticate(cfg *config.Config, tokens LocalTokenParser) gin.HandlerFunc {
	var auth0 gin.HandlerFunc
	if cfg.UsesAuth0() {
		auth0 = EnsureValidToken(cfg)
	}
	localEnabled := tokens != nil && tokens.Enabled()

	return func(c *gin.Context) {
		raw := bearerToken(c.Request)
		if localEnabled && raw != "" {
			if claims, err := tokens.Parse(raw); err == nil {
				c.Set(UserIDKey, claims.Subject)
				c.Set(LocalClaimsKey, claims)
				c.Set(AccessTokenKey, raw)
				c.Next()
				return
			}
		}
		if auth0 != nil {
			auth0(c)
			return
		}
		abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Failed to validate JWT.")
	}
}

// TokenFromQuery promotes ?<param>= to a bearer Authorization header when the
// request carries none. Used on the websocket handshake.
func TokenFromQuery(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if token := c.Query(param); token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}
		c.Next()
	}
}

// LoadPrincipal resolves the token subject into the acting user. Unknown
// subjects answer USER_NOT_FOUND and banned users are turned away.
func LoadPrincipal(users PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := GetUserID(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "User ID not found in token")
			return
		}

		user, err := users.Resolve(c.Request.Context(), subject)
		if err != nil {
			switch apperrors.KindOf(err) {
			case apperrors.KindNotFound:
				abortWithError(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.")
			case apperrors.KindUnauthenticated:
				abortWithError(c, http.StatusUnauthorized, string(apperrors.KindUnauthenticated), "Account is banned")
			default:
				abortWithError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load user profile")
			}
			return
		}

		c.Set(PrincipalKey, user)
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		user, err := GetPrincipal(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		if !allowed[user.Role] {
			abortWithError(c, http.StatusForbidden, string(apperrors.KindForbidden), "Insufficient permissions to access this resource")
			return
		}
		c.Next()
	}
}

// GetUserID extracts the token subject from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetClaims extracts the validated Auth0 claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// GetAccessToken returns the raw bearer token of the request
func GetAccessToken(c *gin.Context) (string, error) {
	token := c.GetString(AccessTokenKey)
	if token == "" {
		return "", &AuthError{Code: "MISSING_TOKEN", Message: "Access token not found in context"}
	}
	return token, nil
}

// GetTokenRole returns the role carried by the token, if any
func GetTokenRole(c *gin.Context) models.Role {
	if v, ok := c.Get(LocalClaimsKey); ok {
		if claims, ok := v.(*services.LocalClaims); ok {
			return models.Role(claims.Role)
		}
	}
	if claims, err := GetClaims(c); err == nil {
		if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
			return models.Role(custom.Role)
		}
	}
	return ""
}

// GetPrincipal returns the user loaded by LoadPrincipal
func GetPrincipal(c *gin.Context) (*models.User, error) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_PRINCIPAL", Message: "User not found in context"}
	}
	user, ok := v.(*models.User)
	if !ok || user == nil {
		return nil, &AuthError{Code: "INVALID_PRINCIPAL", Message: "User is not in the expected format"}
	}
	return user, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
