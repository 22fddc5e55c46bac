// File: internal/services/identity/identity.go
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evanmb/go-converse/internal/domain"
)

// SessionCookieName carries the signed identity token.
const SessionCookieName = "converse_session"

const sessionTTL = 24 * time.Hour

// Logger defines the logging interface used by the identity service.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Service exposes the read-only current identity and logout. It does no
// credential verification; sessions are minted elsewhere (or as anonymous
// guest sessions) and this service only reads and clears them.
type Service struct {
	secret []byte
	logger Logger
}

func NewService(secret string, logger Logger) (*Service, error) {
	if secret == "" {
		return nil, errors.New("identity: session secret is required")
	}
	return &Service{secret: []byte(secret), logger: logger}, nil
}

// Current reads the identity from the request's session cookie. The second
// return value is false when no valid session is present.
func (s *Service) Current(r *http.Request) (domain.User, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return domain.User{}, false
	}
	user, err := s.parseToken(cookie.Value)
	if err != nil {
		s.logger.Debug("rejecting session token", "error", err)
		return domain.User{}, false
	}
	return user, true
}

// Issue signs a session token for the user and sets it as a cookie.
func (s *Service) Issue(w http.ResponseWriter, user domain.User) error {
	if user.DisplayName == "" {
		return errors.New("identity: display name is required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"name":   user.DisplayName,
		"avatar": user.AvatarURL,
		"iat":    now.Unix(),
		"exp":    now.Add(sessionTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("identity: signing session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(sessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie. This is the whole of logout; there is no
// server-side session state to destroy.
func (s *Service) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ParseToken validates a raw token and extracts the identity it carries.
func (s *Service) parseToken(raw string) (domain.User, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return domain.User{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.User{}, errors.New("invalid session token")
	}
	name, _ := claims["name"].(string)
	if name == "" {
		return domain.User{}, errors.New("session token has no identity")
	}
	avatar, _ := claims["avatar"].(string)
	return domain.User{DisplayName: name, AvatarURL: avatar}, nil
}
