package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/factory-support/internal/domain"
	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// AuthMiddleware validates session tokens on HTTP requests and websocket handshakes.
type AuthMiddleware struct {
	tokens     *TokenManager
	cookieName string
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, cookieName string) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthMiddleware{tokens: tokens, cookieName: cookieName}
}

// CookieName is the cookie carrying the session token.
func (m *AuthMiddleware) CookieName() string {
	return m.cookieName
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	identity, err := m.Authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(identityKey, identity)
	return c.Next()
}

// Authenticate resolves the caller identity from the request credential.
func (m *AuthMiddleware) Authenticate(c *fiber.Ctx) (domain.Identity, error) {
	token := CredentialFromRequest(c, m.cookieName)
	if token == "" {
		return domain.Identity{}, apperrors.NewUnauthorized("Authentication required")
	}
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return domain.Identity{}, apperrors.NewUnauthorized("Invalid or expired token")
	}
	return claims.Identity(), nil
}

// CredentialFromRequest extracts the session token: the cookie first, then an
// Authorization bearer header, then a token query parameter for websocket
// clients that cannot set headers.
func CredentialFromRequest(c *fiber.Ctx, cookieName string) string {
	if token := strings.TrimSpace(c.Cookies(cookieName)); token != "" {
		return token
	}
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.Query("token"))
}

// IdentityFromContext retrieves the authenticated caller.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}
