package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"expenseflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ctxUserID    = "userID"
	ctxUserRole  = "userRole"
	ctxCompanyID = "companyID"
)

const devSecret = "default_super_secret_key" // development fallback only

// Identity is the authenticated caller as asserted by the identity provider's token.
type Identity struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
}

// Claims is the JWT payload: sub is the user id.
type Claims struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
	jwt.RegisteredClaims
}

// Authenticator validates HMAC-signed bearer tokens.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator falls back to a development secret when secret is empty.
func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		secret = devSecret
	}
	return &Authenticator{secret: []byte(secret)}
}

// IssueToken signs a token for id, valid for ttl.
func (a *Authenticator) IssueToken(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:      id.Role,
		CompanyID: id.CompanyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates tokenString and extracts the caller identity.
func (a *Authenticator) Parse(tokenString string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("token is not valid")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid sub claim: %w", err)
	}
	companyID, err := uuid.Parse(claims.CompanyID)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid company_id claim: %w", err)
	}
	if claims.Role == "" {
		return Identity{}, errors.New("role not found in token")
	}
	return Identity{UserID: userID, CompanyID: companyID, Role: claims.Role}, nil
}

// RequireRole validates the token and, when allowedRoles is non-empty, checks the caller's role.
func (a *Authenticator) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		id, err := a.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, id.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(ctxUserID, id.UserID)
		c.Set(ctxUserRole, id.Role)
		c.Set(ctxCompanyID, id.CompanyID)

		c.Next()
	}
}

// CurrentIdentity returns the identity stored by RequireRole.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	userID, ok := c.Get(ctxUserID)
	if !ok {
		return Identity{}, false
	}
	companyID, _ := c.Get(ctxCompanyID)
	role := c.GetString(ctxUserRole)

	id := Identity{Role: role}
	id.UserID, _ = userID.(uuid.UUID)
	id.CompanyID, _ = companyID.(uuid.UUID)
	return id, id.UserID != uuid.Nil && id.CompanyID != uuid.Nil
}
