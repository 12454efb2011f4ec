package payment

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stripe/stripe-go/v74"

	"github.com/mmeshcher/checkout-gateway/internal/backend"
)

type stubBackend struct {
	resp *backend.IntentResponse
	err  error
}

func (s *stubBackend) CreatePaymentIntent(ctx context.Context, token, packageID string) (*backend.IntentResponse, error) {
	return s.resp, s.err
}

type stubConfirmer struct {
	pi  *stripe.PaymentIntent
	err error

	gotID     string
	gotParams *stripe.PaymentIntentConfirmParams
}

func (s *stubConfirmer) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	s.gotID = id
	s.gotParams = params
	return s.pi, s.err
}

func TestCreateIntent_OK(t *testing.T) {
	be := &stubBackend{
		resp: &backend.IntentResponse{
			ClientSecret:    "cs_test",
			PaymentIntentID: "pi_1",
			UniqueCode:      "ABCD12",
		},
	}
	client := NewClient(be, nil)

	intent, err := client.CreateIntent(context.Background(), "tok1", "pkg_123")
	if err != nil {
		t.Fatalf("CreateIntent error: %v", err)
	}
	if intent.ClientSecret != "cs_test" || intent.PaymentIntentID != "pi_1" || intent.UniqueCode != "ABCD12" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestCreateIntent_BackendRejection(t *testing.T) {
	be := &stubBackend{err: errors.New("package expired")}
	client := NewClient(be, nil)

	_, err := client.CreateIntent(context.Background(), "tok1", "pkg_expired")
	if !errors.Is(err, ErrIntentCreation) {
		t.Fatalf("expected ErrIntentCreation, got %v", err)
	}
}

func TestConfirmPayment_Succeeded(t *testing.T) {
	confirmer := &stubConfirmer{
		pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded},
	}
	client := NewClient(nil, confirmer)

	conf, err := client.ConfirmPayment(context.Background(), "pi_1", "pm_card", "https://shop.example/result?code=ABCD12&paymentIntentId=pi_1")
	if err != nil {
		t.Fatalf("ConfirmPayment error: %v", err)
	}
	if conf.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %q, want succeeded", conf.Outcome)
	}

	if confirmer.gotID != "pi_1" {
		t.Fatalf("confirmed intent id = %q, want pi_1", confirmer.gotID)
	}
	if confirmer.gotParams.ReturnURL == nil || *confirmer.gotParams.ReturnURL == "" {
		t.Fatalf("return url must be passed to the processor")
	}
}

func TestConfirmPayment_ProcessingCountsAsSubmitted(t *testing.T) {
	confirmer := &stubConfirmer{
		pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusProcessing},
	}
	client := NewClient(nil, confirmer)

	conf, err := client.ConfirmPayment(context.Background(), "pi_1", "pm_card", "https://shop.example/result")
	if err != nil {
		t.Fatalf("ConfirmPayment error: %v", err)
	}
	if conf.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %q, want succeeded", conf.Outcome)
	}
}

func TestConfirmPayment_RequiresRedirect(t *testing.T) {
	confirmer := &stubConfirmer{
		pi: &stripe.PaymentIntent{
			Status: stripe.PaymentIntentStatusRequiresAction,
			NextAction: &stripe.PaymentIntentNextAction{
				RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{
					URL: "https://processor.example/3ds",
				},
			},
		},
	}
	client := NewClient(nil, confirmer)

	conf, err := client.ConfirmPayment(context.Background(), "pi_1", "pm_card", "https://shop.example/result")
	if err != nil {
		t.Fatalf("ConfirmPayment error: %v", err)
	}
	if conf.Outcome != OutcomeRequiresRedirect {
		t.Fatalf("outcome = %q, want requires_redirect", conf.Outcome)
	}
	if conf.RedirectURL != "https://processor.example/3ds" {
		t.Fatalf("redirect url = %q", conf.RedirectURL)
	}
}

func TestConfirmPayment_CardDeclined(t *testing.T) {
	confirmer := &stubConfirmer{
		err: &stripe.Error{
			Type: stripe.ErrorTypeCard,
			Code: stripe.ErrorCodeCardDeclined,
			Msg:  "Your card was declined.",
		},
	}
	client := NewClient(nil, confirmer)

	conf, err := client.ConfirmPayment(context.Background(), "pi_1", "pm_card", "https://shop.example/result")
	if !errors.Is(err, ErrProcessorValidation) {
		t.Fatalf("expected ErrProcessorValidation, got %v", err)
	}
	if conf == nil || conf.Outcome != OutcomeFailed {
		t.Fatalf("declined card must produce failed outcome, got %+v", conf)
	}
	if conf.Message == "" {
		t.Fatalf("inline message must be preserved for the form")
	}
}

func TestConfirmPayment_NetworkError(t *testing.T) {
	confirmer := &stubConfirmer{err: errors.New("connection reset")}
	client := NewClient(nil, confirmer)

	_, err := client.ConfirmPayment(context.Background(), "pi_1", "pm_card", "https://shop.example/result")
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrProcessorValidation) {
		t.Fatalf("network error must not look like card validation")
	}
}

func TestReturnURL(t *testing.T) {
	got, err := ReturnURL("https://shop.example/checkout/result", "ABCD12", "pi_1")
	if err != nil {
		t.Fatalf("ReturnURL error: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := u.Query()
	if q.Get("code") != "ABCD12" {
		t.Fatalf("code = %q, want ABCD12", q.Get("code"))
	}
	if q.Get("paymentIntentId") != "pi_1" {
		t.Fatalf("paymentIntentId = %q, want pi_1", q.Get("paymentIntentId"))
	}
}

func TestReturnURL_KeepsExistingQuery(t *testing.T) {
	got, err := ReturnURL("https://shop.example/result?lang=en", "ABCD12", "pi_1")
	if err != nil {
		t.Fatalf("ReturnURL error: %v", err)
	}

	u, _ := url.Parse(got)
	q := u.Query()
	if q.Get("lang") != "en" || q.Get("code") != "ABCD12" || q.Get("paymentIntentId") != "pi_1" {
		t.Fatalf("unexpected query: %q", u.RawQuery)
	}
}
