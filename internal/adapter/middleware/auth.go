package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"halonet-payments/internal/infrastructure/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims: the subject is the user id; company_id scopes every request.
type Claims struct {
	CompanyID string `json:"company_id"`
	jwt.RegisteredClaims
}

type Principal struct {
	UserID    string
	CompanyID string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// IssueToken signs an HS256 token; used by ops tooling and tests.
func IssueToken(secret, userID, companyID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Auth validates the bearer token and stores the Principal in the request context.
func Auth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			parts := strings.Fields(req.Header.Get(echo.HeaderAuthorization))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authorization header format must be Bearer {token}"})
			}

			var claims Claims
			_, err := jwt.ParseWithClaims(parts[1], &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token has expired"
				}
				logging.FromContext(req.Context()).WithField("error", err.Error()).Warn("auth: rejected token")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": msg})
			}
			if claims.Subject == "" || claims.CompanyID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token lacks subject or company_id"})
			}

			p := Principal{UserID: claims.Subject, CompanyID: claims.CompanyID}
			ctx := WithPrincipal(req.Context(), p)
			entry := logging.FromContext(ctx).WithFields(map[string]any{"user_id": p.UserID, "company_id": p.CompanyID})
			c.SetRequest(req.WithContext(logging.WithEntry(ctx, entry)))
			return next(c)
		}
	}
}

// SameCompany rejects requests whose :company_id differs from the token's.
func SameCompany(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFrom(c.Request().Context())
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		}
		if id := c.Param("company_id"); id != "" && id != p.CompanyID {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "company mismatch"})
		}
		return next(c)
	}
}
