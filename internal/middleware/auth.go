// Package middleware содержит HTTP middleware шлюза оформления покупок.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/checkout-gateway/internal/model"
	"github.com/mmeshcher/checkout-gateway/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	sessionCookieName = "session_id"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// SessionResolver находит сессию по идентификатору из cookie.
type SessionResolver interface {
	ResolveSession(ctx context.Context, id string) (*model.Session, error)
}

// AuthMiddleware проверяет подписанный cookie сессии и кладёт сессию
// в контекст запроса.
type AuthMiddleware struct {
	secretKey []byte
	sessions  SessionResolver
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string, sessions SessionResolver) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		sessions:  sessions,
	}
}

// Middleware проверяет cookie, находит сессию и добавляет её в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		sessionID, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		s, err := a.sessions.ResolveSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie устанавливает подписанный cookie для идентификатора сессии.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.sign(sessionID),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

// ClearSessionCookie немедленно гасит cookie сессии.
func (a *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(sessionID string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(sessionID))
	signature := mac.Sum(nil)
	return sessionID + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	idx := strings.LastIndex(cookieValue, ".")
	if idx <= 0 {
		return "", false
	}

	sessionID := cookieValue[:idx]
	signature := cookieValue[idx+1:]

	expected := a.sign(sessionID)
	expectedSignature := expected[strings.LastIndex(expected, ".")+1:]

	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return "", false
	}

	return sessionID, true
}

// GetSessionFromContext извлекает сессию из контекста запроса.
func GetSessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*model.Session)
	return s, ok
}
