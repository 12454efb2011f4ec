// Package session управляет жизненным циклом серверных сессий.
// Сессия — явный объект с init при входе и teardown при выходе; никакого
// глобального изменяемого состояния авторизации в шлюзе нет.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/checkout-gateway/internal/model"
)

// ErrNotFound возвращается, если сессия не существует или истекла.
var ErrNotFound = errors.New("session not found")

// DefaultTTL — срок жизни сессии по умолчанию.
const DefaultTTL = 30 * 24 * time.Hour

// Store описывает контракт хранилища сессий.
type Store interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Manager создаёт, находит и уничтожает сессии.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager создаёт менеджер сессий поверх хранилища.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}
}

// Init создаёт сессию для пользователя, вошедшего во внешний бэкенд.
func (m *Manager) Init(ctx context.Context, token string, user model.User) (*model.Session, error) {
	now := time.Now().UTC()
	s := &model.Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return s, nil
}

// Resolve возвращает живую сессию по идентификатору.
// Истёкшая сессия удаляется и считается несуществующей.
func (m *Manager) Resolve(ctx context.Context, id string) (*model.Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.Expired(time.Now().UTC()) {
		_ = m.store.DeleteSession(ctx, id)
		return nil, ErrNotFound
	}

	return s, nil
}

// Teardown уничтожает сессию. После этого токен бэкенда нигде не хранится,
// и любой опрос с ним получит 401.
func (m *Manager) Teardown(ctx context.Context, id string) error {
	if err := m.store.DeleteSession(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
