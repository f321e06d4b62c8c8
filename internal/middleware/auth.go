package middleware

import (
	"fmt"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	adapter "github.com/gwatts/gin-adapter"
)

// UserIDKey is where the fake auth middleware used by tests stores the
// subject. Real requests carry it in the validated JWT instead.
const UserIDKey = "user_id"

// EnsureValidToken validates the Authorization bearer token against the
// Auth0 tenant's JWKS and rejects the request otherwise.
func EnsureValidToken(auth0Domain, audience string) (gin.HandlerFunc, error) {
	issuerURL, err := url.Parse("https://" + auth0Domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse issuer url: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
	)
	if err != nil {
		return nil, fmt.Errorf("set up jwt validator: %w", err)
	}

	mw := jwtmiddleware.New(jwtValidator.ValidateToken)
	return adapter.Wrap(mw.CheckJWT), nil
}

// GetUserID extracts the authenticated subject: the sub claim of the
// validated JWT, or the context value set by the test middleware.
func GetUserID(c *gin.Context) (string, bool) {
	if id, ok := c.Get(UserIDKey); ok {
		s, ok := id.(string)
		return s, ok && s != ""
	}

	claims, ok := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok {
		return "", false
	}
	return claims.RegisteredClaims.Subject, true
}
