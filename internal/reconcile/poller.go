// Package reconcile реализует сверку платежа с записью транзакции:
// опрос статуса до терминального состояния с ограничением по времени.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-gateway/internal/backend"
	"github.com/mmeshcher/checkout-gateway/internal/model"
)

// State описывает состояние автомата сверки.
type State string

const (
	// StateInitial — до первого запроса статуса.
	StateInitial State = "initial"
	// StateProcessing — запись не финализирована, опрос продолжается.
	StateProcessing State = "processing"
	// StatePaid — запись финализирована успешно. Терминальное.
	StatePaid State = "paid"
	// StateFailed — бэкенд явно отметил платёж неуспешным. Терминальное.
	StateFailed State = "failed"
	// StateTimedOut — дедлайн истёк без финализации. Терминальное.
	StateTimedOut State = "timed_out"
	// StateErrored — токен авторизации отозван во время опроса. Терминальное.
	StateErrored State = "errored"
)

// Terminal сообщает, является ли состояние терминальным.
func (s State) Terminal() bool {
	switch s {
	case StatePaid, StateFailed, StateTimedOut, StateErrored:
		return true
	}
	return false
}

const (
	// DefaultInterval — пауза между запросами статуса.
	DefaultInterval = 3 * time.Second
	// DefaultDeadline — общий бюджет опроса.
	DefaultDeadline = 120 * time.Second
)

// Result содержит терминальное состояние сверки и, для завершённых
// платежей, финализированную запись.
type Result struct {
	State  State
	Paid   *model.TransactionPaid
	Failed *model.TransactionFailed
}

// Lookup запрашивает текущую запись транзакции.
type Lookup func(ctx context.Context) (model.Transaction, error)

// errNotFinalized отмечает промежуточный ответ: продолжать опрос.
var errNotFinalized = errors.New("transaction not finalized")

// Poller выполняет опрос до терминального состояния. Запросы идут строго
// последовательно: следующий не начинается, пока не завершился предыдущий.
type Poller struct {
	lookup   Lookup
	interval time.Duration
	deadline time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	result *Result
}

// Option настраивает Poller.
type Option func(*Poller)

// WithInterval задаёт паузу между запросами.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithDeadline задаёт общий бюджет опроса.
func WithDeadline(d time.Duration) Option {
	return func(p *Poller) { p.deadline = d }
}

// NewPoller создаёт автомат сверки для одной покупки.
func NewPoller(lookup Lookup, logger *zap.Logger, opts ...Option) *Poller {
	p := &Poller{
		lookup:   lookup,
		interval: DefaultInterval,
		deadline: DefaultDeadline,
		logger:   logger,
		state:    StateInitial,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// State возвращает текущее состояние автомата.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Poller) finish(res *Result) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = res.State
	p.result = res
	return res
}

// Run ведёт опрос до терминального состояния либо до отмены контекста.
// Повторный вызов после терминального состояния ничего не опрашивает и
// возвращает сохранённый результат.
func (p *Poller) Run(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	if p.result != nil {
		res := p.result
		p.mu.Unlock()
		return res, nil
	}
	p.mu.Unlock()

	var terminal *Result

	b := retry.WithMaxDuration(p.deadline, retry.NewConstant(p.interval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		tx, err := p.lookup(ctx)
		if err != nil {
			if errors.Is(err, backend.ErrUnauthorized) {
				// Сессия отозвана (logout): дальнейший опрос бессмыслен.
				return err
			}
			if errors.Is(err, backend.ErrNotFound) {
				p.setState(StateProcessing)
				return retry.RetryableError(errNotFinalized)
			}
			// Сетевые сбои — временный промах, не ошибка сверки.
			p.logger.Warn("transaction lookup failed", zap.Error(err))
			p.setState(StateProcessing)
			return retry.RetryableError(err)
		}

		switch t := tx.(type) {
		case model.TransactionPaid:
			terminal = &Result{State: StatePaid, Paid: &t}
			return nil
		case model.TransactionFailed:
			terminal = &Result{State: StateFailed, Failed: &t}
			return nil
		default:
			p.setState(StateProcessing)
			return retry.RetryableError(errNotFinalized)
		}
	})

	if err != nil {
		if ctx.Err() != nil {
			// Отмена (уход со страницы): состояние не трогаем, записей нет.
			return nil, ctx.Err()
		}
		if errors.Is(err, backend.ErrUnauthorized) {
			return p.finish(&Result{State: StateErrored}), nil
		}
		return p.finish(&Result{State: StateTimedOut}), nil
	}

	return p.finish(terminal), nil
}
