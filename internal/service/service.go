// Package service реализует бизнес-логику шлюза оформления покупок.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-gateway/internal/backend"
	"github.com/mmeshcher/checkout-gateway/internal/listquery"
	"github.com/mmeshcher/checkout-gateway/internal/model"
	"github.com/mmeshcher/checkout-gateway/internal/payment"
	"github.com/mmeshcher/checkout-gateway/internal/reconcile"
	"github.com/mmeshcher/checkout-gateway/internal/routing"
	"github.com/mmeshcher/checkout-gateway/internal/session"
)

// ErrNoIdentifier возвращается, если для сверки не передан ни
// идентификатор платёжной сессии, ни код покупки.
var ErrNoIdentifier = errors.New("neither session id nor unique code provided")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	session.Store
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	Close() error
}

// Backend описывает контракт внешнего платёжного и каталожного API.
type Backend interface {
	Login(ctx context.Context, login, password string) (*backend.LoginResult, error)
	Products(ctx context.Context, f listquery.Filters, limit int) (*backend.ProductPage, error)
	ProductFacets(ctx context.Context) (*backend.Facets, error)
	TransactionByCode(ctx context.Context, token, code string) (*model.RawTransaction, error)
	TransactionBySession(ctx context.Context, token, sessionID string) (*model.RawTransaction, error)
}

// Payments описывает контракт платёжного клиента.
type Payments interface {
	CreateIntent(ctx context.Context, token, packageID string) (*payment.Intent, error)
	ConfirmPayment(ctx context.Context, intentID, paymentMethodID, returnURL string) (*payment.Confirmation, error)
}

// Service содержит бизнес-логику шлюза оформления покупок.
type Service struct {
	repo     Repository
	backend  Backend
	payments Payments
	sessions *session.Manager
	logger   *zap.Logger

	returnURLBase string
	pollInterval  time.Duration
	pollDeadline  time.Duration
}

// Options задаёт параметры сервиса.
type Options struct {
	ReturnURLBase string
	PollInterval  time.Duration
	PollDeadline  time.Duration
	SessionTTL    time.Duration
}

// NewService создаёт новый сервис поверх репозитория, бэкенда и платёжного клиента.
func NewService(repo Repository, be Backend, payments Payments, logger *zap.Logger, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = reconcile.DefaultInterval
	}
	if opts.PollDeadline <= 0 {
		opts.PollDeadline = reconcile.DefaultDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:          repo,
		backend:       be,
		payments:      payments,
		sessions:      session.NewManager(repo, opts.SessionTTL),
		logger:        logger,
		returnURLBase: opts.ReturnURLBase,
		pollInterval:  opts.PollInterval,
		pollDeadline:  opts.PollDeadline,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Login обменивает учётные данные на сессию и возвращает маршрут дашборда
// для редиректа после входа.
func (s *Service) Login(ctx context.Context, login, password string) (*model.Session, string, error) {
	res, err := s.backend.Login(ctx, login, password)
	if err != nil {
		return nil, "", err
	}

	sess, err := s.sessions.Init(ctx, res.Token, res.User)
	if err != nil {
		return nil, "", err
	}

	return sess, routing.ResolveDashboardRoute(&sess.User), nil
}

// Logout уничтожает сессию пользователя.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Teardown(ctx, sessionID)
}

// ResolveSession возвращает живую сессию по идентификатору.
func (s *Service) ResolveSession(ctx context.Context, id string) (*model.Session, error) {
	return s.sessions.Resolve(ctx, id)
}

// DashboardRoute возвращает маршрут дашборда для сессии.
func (s *Service) DashboardRoute(sess *model.Session) string {
	if sess == nil {
		return routing.ResolveDashboardRoute(nil)
	}
	return routing.ResolveDashboardRoute(&sess.User)
}

// ProductListing описывает страницу каталога вместе с канонической
// строкой запроса для адресной строки клиента.
type ProductListing struct {
	Products   []model.Product
	Total      int
	Page       int
	TotalPages int
	Query      string
}

// ListProducts возвращает страницу каталога. Если запрошенная страница
// оказалась за пределами результата, она прижимается к последней
// существующей и запрос повторяется один раз.
func (s *Service) ListProducts(ctx context.Context, f listquery.Filters, limit int) (*ProductListing, error) {
	page, err := s.backend.Products(ctx, f, limit)
	if err != nil {
		return nil, err
	}

	if clamped := listquery.ClampPage(f.Page, page.TotalPages); clamped != f.Page {
		f.Page = clamped
		page, err = s.backend.Products(ctx, f, limit)
		if err != nil {
			return nil, err
		}
	}

	return &ProductListing{
		Products:   page.Products,
		Total:      page.Total,
		Page:       f.Page,
		TotalPages: page.TotalPages,
		Query:      f.Encode(),
	}, nil
}

// ProductFacets возвращает доступные значения фильтров каталога.
func (s *Service) ProductFacets(ctx context.Context) (*backend.Facets, error) {
	return s.backend.ProductFacets(ctx)
}

// CreateIntent создаёт платёжное намерение для пакета от имени сессии.
func (s *Service) CreateIntent(ctx context.Context, sess *model.Session, packageID string) (*payment.Intent, error) {
	return s.payments.CreateIntent(ctx, sess.Token, packageID)
}

// ConfirmPayment подтверждает платёж у провайдера. Адрес возврата строится
// здесь, чтобы редиректные подтверждения всегда несли code и paymentIntentId.
func (s *Service) ConfirmPayment(ctx context.Context, intentID, paymentMethodID, uniqueCode string) (*payment.Confirmation, error) {
	returnURL, err := payment.ReturnURL(s.returnURLBase, uniqueCode, intentID)
	if err != nil {
		return nil, err
	}
	return s.payments.ConfirmPayment(ctx, intentID, paymentMethodID, returnURL)
}

// AwaitReconciliation ведёт опрос записи транзакции до терминального
// состояния. Поиск по платёжной сессии предпочтительнее поиска по коду.
func (s *Service) AwaitReconciliation(ctx context.Context, sess *model.Session, processorSessionID, uniqueCode string) (*reconcile.Result, error) {
	var lookup reconcile.Lookup

	switch {
	case processorSessionID != "":
		lookup = func(ctx context.Context) (model.Transaction, error) {
			raw, err := s.backend.TransactionBySession(ctx, sess.Token, processorSessionID)
			if err != nil {
				return nil, err
			}
			return model.ClassifyTransaction(raw), nil
		}
	case uniqueCode != "":
		lookup = func(ctx context.Context) (model.Transaction, error) {
			raw, err := s.backend.TransactionByCode(ctx, sess.Token, uniqueCode)
			if err != nil {
				return nil, err
			}
			return model.ClassifyTransaction(raw), nil
		}
	default:
		return nil, ErrNoIdentifier
	}

	poller := reconcile.NewPoller(lookup, s.logger,
		reconcile.WithInterval(s.pollInterval),
		reconcile.WithDeadline(s.pollDeadline),
	)

	return poller.Run(ctx)
}

// StartSessionCleanup запускает фоновый процесс удаления истёкших сессий.
func (s *Service) StartSessionCleanup(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.repo.DeleteExpiredSessions(ctx)
				if err != nil {
					s.logger.Warn("session cleanup failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("expired sessions removed", zap.Int64("count", n))
				}
			}
		}
	}()
}
