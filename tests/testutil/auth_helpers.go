package testutil

import (
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/peplixcoin/cmeoi-sub001/config"
	"github.com/peplixcoin/cmeoi-sub001/middleware"
)

const (
	TestJWTSecret = "test-secret-do-not-use"
	TestIssuer    = "cmeoi-test"
	TestAudience  = "cmeoi-api-test"
)

// TestConfig returns a configuration that verifies HS256 tokens signed by SignToken
func TestConfig() *config.Config {
	return &config.Config{
		DatabaseDriver:     "sqlite",
		Port:               "8080",
		GoEnv:              "test",
		Auth0Audience:      TestAudience,
		JWTSecret:          TestJWTSecret,
		JWTIssuer:          TestIssuer,
		LogLevel:           "error",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		StreamBufferSize:   16,
		ShutdownTimeout:    time.Second,
	}
}

// SignToken mints a token accepted by middleware.EnsureValidToken(TestConfig()).
// An empty role makes a customer token.
func SignToken(t *testing.T, subject, role, username string) string {
	t.Helper()
	return SignTokenWithSecret(t, TestJWTSecret, subject, role, username)
}

// SignTokenWithSecret mints a token with the test issuer and audience signed by secret
func SignTokenWithSecret(t *testing.T, secret, subject, role, username string) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":      TestIssuer,
		"aud":      []string{TestAudience},
		"sub":      subject,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Hour).Unix(),
		"role":     role,
		"username": username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, role, username string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  TestIssuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Role:     role,
			Username: username,
		},
	}
}

// SetMockAuthContext sets up a mock authenticated context for testing
func SetMockAuthContext(c *gin.Context, subject, role, username string) {
	c.Set("user_id", subject)
	c.Set("validated_claims", MockValidatedClaims(subject, role, username))
}

// MockAuthMiddleware authenticates every request as the given caller
func MockAuthMiddleware(subject, role, username string) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c, subject, role, username)
		c.Next()
	}
}

// HeaderAuthMiddleware authenticates each request from its X-Test-* headers
// so one router can serve several callers in a test.
func HeaderAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c,
			c.GetHeader("X-Test-Subject"),
			c.GetHeader("X-Test-Role"),
			c.GetHeader("X-Test-Username"),
		)
		c.Next()
	}
}
