// Package payment реализует создание платёжного намерения и его
// подтверждение через платёжного провайдера.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/stripe/stripe-go/v74"

	"github.com/mmeshcher/checkout-gateway/internal/backend"
)

// ErrIntentCreation возвращается, если намерение не удалось создать:
// пакет отвергнут бэкендом либо токен авторизации недействителен.
var (
	ErrIntentCreation = errors.New("payment intent creation failed")
	// ErrProcessorValidation возвращается при отказе провайдера по вине
	// платёжного средства; показывается пользователю прямо в форме.
	ErrProcessorValidation = errors.New("payment method rejected")
)

// Outcome описывает исход подтверждения платежа.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeRequiresRedirect Outcome = "requires_redirect"
	OutcomeFailed           Outcome = "failed"
)

// Intent содержит данные созданного платёжного намерения.
type Intent struct {
	ClientSecret    string
	PaymentIntentID string
	UniqueCode      string
}

// Confirmation описывает результат подтверждения платежа.
type Confirmation struct {
	Outcome     Outcome
	RedirectURL string
	Message     string
}

// IntentCreator описывает контракт бэкенда для создания намерения.
type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, token, packageID string) (*backend.IntentResponse, error)
}

// IntentConfirmer описывает подтверждение платёжного намерения у провайдера.
type IntentConfirmer interface {
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

// Client связывает бэкенд (создание намерения) и провайдера (подтверждение).
type Client struct {
	backend IntentCreator
	intents IntentConfirmer
}

// NewClient создаёт платёжный клиент.
func NewClient(backend IntentCreator, intents IntentConfirmer) *Client {
	return &Client{
		backend: backend,
		intents: intents,
	}
}

// CreateIntent создаёт платёжное намерение для пакета.
// Любой отказ бэкенда сворачивается в ErrIntentCreation: для пользователя
// это один блокирующий сценарий без автоматического повтора.
func (c *Client) CreateIntent(ctx context.Context, token, packageID string) (*Intent, error) {
	resp, err := c.backend.CreatePaymentIntent(ctx, token, packageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntentCreation, err)
	}

	return &Intent{
		ClientSecret:    resp.ClientSecret,
		PaymentIntentID: resp.PaymentIntentID,
		UniqueCode:      resp.UniqueCode,
	}, nil
}

// ConfirmPayment подтверждает намерение у провайдера. returnURL обязан
// содержать code и paymentIntentId, чтобы редиректный сценарий (3-D Secure,
// банковские редиректы) мог продолжить поток без локального состояния.
func (c *Client) ConfirmPayment(ctx context.Context, intentID, paymentMethodID, returnURL string) (*Confirmation, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
		ReturnURL:     stripe.String(returnURL),
	}
	params.Context = ctx

	pi, err := c.intents.Confirm(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return &Confirmation{
				Outcome: OutcomeFailed,
				Message: stripeErr.Msg,
			}, fmt.Errorf("%w: %s", ErrProcessorValidation, stripeErr.Code)
		}
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	return confirmationFromIntent(pi), nil
}

func confirmationFromIntent(pi *stripe.PaymentIntent) *Confirmation {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		// Окончательную истину о платеже устанавливает сверка по записи
		// транзакции, поэтому processing здесь равнозначен успеху отправки.
		return &Confirmation{Outcome: OutcomeSucceeded}
	case stripe.PaymentIntentStatusRequiresAction:
		conf := &Confirmation{Outcome: OutcomeRequiresRedirect}
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			conf.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
		return conf
	default:
		return &Confirmation{
			Outcome: OutcomeFailed,
			Message: string(pi.Status),
		}
	}
}

// ReturnURL строит адрес возврата из редиректного подтверждения.
// Оба параметра обязательны: по ним страница результата восстанавливает
// контекст покупки без какого-либо сохранённого состояния.
func ReturnURL(base, uniqueCode, intentID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse return url base: %w", err)
	}

	q := u.Query()
	q.Set("code", uniqueCode)
	q.Set("paymentIntentId", intentID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
