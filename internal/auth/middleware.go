package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"gitvault/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "gitvaultUser"

// ContextUser represents the authenticated principal stored in the request context.
type ContextUser struct {
	ID    uuid.UUID
	Email string
}

type userMirror interface {
	Upsert(ctx context.Context, userID uuid.UUID, email string) error
}

// Verifier validates tokens issued by the external auth provider and
// mirrors each principal into the local store on first sight.
type Verifier struct {
	secret []byte
	mirror userMirror
	seen   sync.Map
	log    *slog.Logger
}

// NewVerifier constructs a token verifier backed by the provider's
// shared signing secret.
func NewVerifier(cfg config.AuthConfig, mirror userMirror, log *slog.Logger) *Verifier {
	return &Verifier{secret: []byte(cfg.JWTSecret), mirror: mirror, log: log}
}

type providerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify parses and validates a provider token, returning the principal.
func (v *Verifier) Verify(tokenString string) (ContextUser, error) {
	var claims providerClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return ContextUser{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ContextUser{}, err
	}
	return ContextUser{ID: userID, Email: claims.Email}, nil
}

// Middleware validates bearer tokens and injects the authenticated user.
// The mirror upsert runs once per principal per process lifetime.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		user, err := v.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		if v.mirror != nil {
			if _, done := v.seen.Load(user.ID); !done {
				if err := v.mirror.Upsert(c.Request.Context(), user.ID, user.Email); err != nil {
					v.log.Error("mirror user", "user", user.ID, "error", err)
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
					return
				}
				v.seen.Store(user.ID, struct{}{})
			}
		}

		c.Set(string(userContextKey), user)
		c.Next()
	}
}

// CurrentUser extracts the authenticated user from the context.
func CurrentUser(c *gin.Context) (ContextUser, bool) {
	value, exists := c.Get(string(userContextKey))
	if !exists {
		return ContextUser{}, false
	}
	user, ok := value.(ContextUser)
	return user, ok
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
