// Package auth exchanges EBI AAP credentials for a JWT and tracks its
// validity. A token can also be supplied directly, for example when it was
// obtained out of band.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// DefaultURL is the AAP login endpoint of the EBI explore environment.
const DefaultURL = "https://explore.api.aai.ebi.ac.uk/auth"

// ErrTokenExpired is returned when an operation is attempted with an
// expired token.
var ErrTokenExpired = errors.New("token is expired")

// expiryWarning is how close to expiry Duration starts warning.
const expiryWarning = 5 * time.Minute

// Claims are the AAP token claims this library cares about.
type Claims struct {
	jwt.RegisteredClaims
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
	Email    string   `json:"email"`
	Domains  []string `json:"domains"`
}

// Auth holds a bearer token and its decoded claims.
type Auth struct {
	Token  string
	Claims Claims

	Logger logrus.FieldLogger
}

// New builds an Auth from an existing token string. The token signature is
// not verified: the client holds no key material, it only needs the claims.
func New(token string) (*Auth, error) {
	a := &Auth{}
	if err := a.setToken(token); err != nil {
		return nil, err
	}
	return a, nil
}

// Login exchanges user and password for a token at authURL. Pass
// DefaultURL unless you target another AAP environment.
func Login(ctx context.Context, hc *http.Client, authURL, user, password string) (*Auth, error) {
	if user == "" || password == "" {
		return nil, errors.New("user and password are required")
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(user, password)
	logrus.WithField("user", user).Debug("authenticating against AAP")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &LoginError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return New(strings.TrimSpace(string(body)))
}

// LoginError reports a failed credential exchange.
type LoginError struct {
	StatusCode int
	Body       string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("aap login failed: status=%d body=%s", e.StatusCode, e.Body)
}

func (a *Auth) setToken(token string) error {
	if token == "" {
		return errors.New("token is required")
	}
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return errors.New("token has no exp claim")
	}
	a.Token = token
	a.Claims = *claims
	return nil
}

func (a *Auth) logger() logrus.FieldLogger {
	if a.Logger != nil {
		return a.Logger
	}
	return logrus.StandardLogger()
}

// Duration returns the remaining validity of the token. It is negative once
// the token has expired.
func (a *Auth) Duration() time.Duration {
	d := time.Until(a.Claims.ExpiresAt.Time)
	log := a.logger().WithField("user", a.Claims.Name)
	switch {
	case d < 0:
		log.Error("token is expired")
	case d < expiryWarning:
		log.Warnf("token will expire in %.0f seconds", d.Seconds())
	default:
		log.Debugf("token will expire in %.0f seconds", d.Seconds())
	}
	return d
}

// IsExpired reports whether the token expiry has passed.
func (a *Auth) IsExpired() bool {
	return time.Now().After(a.Claims.ExpiresAt.Time)
}

func (a *Auth) String() string {
	d := a.Duration()
	if d < 0 {
		return fmt.Sprintf("Token for %s is expired", a.Claims.Name)
	}
	return fmt.Sprintf("Token for %s will last %.0f seconds", a.Claims.Name, d.Seconds())
}
