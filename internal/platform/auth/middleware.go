package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type contextKey string

const (
	UserIDKey       contextKey = "user_id"
	UserRolesKey    contextKey = "user_roles"
	UserPermsKey    contextKey = "user_permissions"
	CallerRegionKey contextKey = "caller_region"
)

// RegionHeader carries the caller's region when the token has no region
// claim.
const RegionHeader = "X-Caller-Region"

type Claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Region      string   `json:"region"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is used for development/testing only
	SigningKey []byte
	Skipper    middleware.Skipper
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	// Resolve JWKS URL: if not explicitly set, try OIDC auto-discovery from issuer.
	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" && len(cfg.SigningKey) == 0 {
		if provider, err := NewOIDCProvider(cfg.Issuer); err == nil {
			jwksURL = provider.JWKSURI
		}
	}

	var keyFunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		keyFunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		keyFunc = jwksKeyFunc(NewJWKSCache(jwksURL, defaultJWKSCacheTTL))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			region := claims.Region
			if region == "" {
				region = c.Request().Header.Get(RegionHeader)
			}
			setIdentity(c, claims.Subject, claims.Roles, claims.Permissions, region)
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without a token act as an administrator named dev-user.
func DevAuthMiddleware(skipper middleware.Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			if c.Request().Header.Get("Authorization") == "" {
				setIdentity(c, "dev-user", []string{RoleAdmin}, AllPermissions(), c.Request().Header.Get(RegionHeader))
			}
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, userID string, roles, perms []string, region string) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	ctx = context.WithValue(ctx, UserPermsKey, perms)
	ctx = context.WithValue(ctx, CallerRegionKey, region)
	c.SetRequest(c.Request().WithContext(ctx))
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func PermissionsFromContext(ctx context.Context) []string {
	perms, _ := ctx.Value(UserPermsKey).([]string)
	return perms
}

func RegionFromContext(ctx context.Context) string {
	region, _ := ctx.Value(CallerRegionKey).(string)
	return region
}

// Actor identifies the caller of a governed operation.
type Actor struct {
	ID             string
	Roles          []string
	Region         string
	NetworkAddress string
	UserAgent      string
}

// ActorFromEcho builds the actor for the current request.
func ActorFromEcho(c echo.Context) Actor {
	ctx := c.Request().Context()
	return Actor{
		ID:             UserIDFromContext(ctx),
		Roles:          RolesFromContext(ctx),
		Region:         RegionFromContext(ctx),
		NetworkAddress: c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
	}
}
