// Package adminauth issues and checks the bearer tokens of the admin console.
package adminauth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// RoleAdmin is the only role the console knows.
const RoleAdmin = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrNotAdmin           = errors.New("admin access required")
)

// Claims are the JWT claims of an admin token.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	jwt.StandardClaims
}

// Authenticator checks admin credentials and signs tokens.
type Authenticator struct {
	username string
	password string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthenticator creates an authenticator for one admin account.
func NewAuthenticator(username, password string, secret []byte, ttl time.Duration) (*Authenticator, error) {
	if username == "" || password == "" {
		return nil, errors.New("adminauth: username and password are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("adminauth: signing secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{
		username: username,
		password: password,
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Login returns a signed token when the credentials match.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := &Claims{
		Role:     RoleAdmin,
		Username: username,
		StandardClaims: jwt.StandardClaims{
			Subject:   username,
			IssuedAt:  now.Unix(),
			ExpiresAt: expires.Unix(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("adminauth: sign token: %w", err)
	}
	return token, expires, nil
}

// Verify checks a token's signature, algorithm, expiry and role. A valid
// token without the admin role yields ErrNotAdmin.
func (a *Authenticator) Verify(signed string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(signed, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: role %q", ErrNotAdmin, claims.Role)
	}
	return claims, nil
}
