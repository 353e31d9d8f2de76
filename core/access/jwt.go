package access

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kurbisio-cms/core/cache"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// CookieName is the cookie which may carry the token instead of the Authorization header
const CookieName = "CMS-JWT"

// tokenCacheTTL bounds how long a verified token is remembered
const tokenCacheTTL = time.Minute

// Claims are the accepted token claims. The subject is the actor id.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actor, valid for ttl
func IssueToken(secret []byte, actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: actor.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies tokenString and returns its actor
func ParseToken(secret []byte, tokenString string) (*Actor, error) {
	actor, _, err := parseToken(secret, tokenString)
	return actor, err
}

// parseToken also returns the token's expiry, zero if the token has none
func parseToken(secret []byte, tokenString string) (*Actor, time.Time, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	if !token.Valid {
		return nil, time.Time{}, errors.New("invalid token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, time.Time{}, fmt.Errorf("invalid subject: %w", err)
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return &Actor{ID: claims.Subject, Roles: claims.Roles}, expiresAt, nil
}

func bearerToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 0 && bearer != "null" {
		if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
			return bearer[7:]
		}
		return bearer
	}
	if cookie, _ := r.Cookie(CookieName); cookie != nil {
		return cookie.Value
	}
	return ""
}

// NewJwtMiddelware returns a middleware handler to validate
// HS256 JWT bearer token.
//
// Tokens are accepted as "Authorization: Bearer" header or as CMS-JWT cookie.
// Requests without a token pass through anonymously. A token which does
// not verify is rejected with http.StatusUnauthorized.
func NewJwtMiddelware(secret []byte) mux.MiddlewareFunc {
	tokens := cache.New[*Actor](tokenCacheTTL)

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorFromContext(r.Context()) != nil {
				h.ServeHTTP(w, r)
				return
			}

			tokenString := bearerToken(r)
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no actor, moving on
				return
			}

			actor, ok := tokens.Get(tokenString)
			if !ok {
				var (
					expiresAt time.Time
					err       error
				)
				actor, expiresAt, err = parseToken(secret, tokenString)
				if err != nil {
					logger.FromContext(r.Context()).WithError(err).Debugln("rejected bearer token")
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				tokens.SetUntil(tokenString, actor, expiresAt)
			}

			h.ServeHTTP(w, r.WithContext(actor.ContextWithActor(r.Context())))
		})
	}
}
