// Package handler содержит HTTP-обработчики API шлюза оформления покупок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-gateway/internal/backend"
	"github.com/mmeshcher/checkout-gateway/internal/listquery"
	"github.com/mmeshcher/checkout-gateway/internal/middleware"
	"github.com/mmeshcher/checkout-gateway/internal/model"
	"github.com/mmeshcher/checkout-gateway/internal/payment"
	"github.com/mmeshcher/checkout-gateway/internal/reconcile"
	"github.com/mmeshcher/checkout-gateway/internal/service"
	"github.com/mmeshcher/checkout-gateway/internal/validation"
)

// defaultPageLimit — размер страницы каталога.
const defaultPageLimit = 12

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, login, password string) (*model.Session, string, error)
	Logout(ctx context.Context, sessionID string) error
	ResolveSession(ctx context.Context, id string) (*model.Session, error)
	DashboardRoute(sess *model.Session) string
	ListProducts(ctx context.Context, f listquery.Filters, limit int) (*service.ProductListing, error)
	ProductFacets(ctx context.Context) (*backend.Facets, error)
	CreateIntent(ctx context.Context, sess *model.Session, packageID string) (*payment.Intent, error)
	ConfirmPayment(ctx context.Context, intentID, paymentMethodID, uniqueCode string) (*payment.Confirmation, error)
	AwaitReconciliation(ctx context.Context, sess *model.Session, processorSessionID, uniqueCode string) (*reconcile.Result, error)
}

// Handler реализует HTTP-обработчики API шлюза.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Route string `json:"route"`
}

// Login выполняет вход через внешний бэкенд и устанавливает cookie сессии.
// Маршрут дашборда в ответе вычисляется резолвером и нигде больше не выводится.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sess, route, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetSessionCookie(w, sess.ID)
	writeJSON(w, http.StatusOK, loginResponse{Route: route})
}

// Logout уничтожает текущую сессию и гасит cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), sess.ID); err != nil {
		h.logger.Error("logout error", zap.Error(err), zap.String("session", sess.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

// DashboardRoute возвращает маршрут дашборда текущего пользователя.
func (h *Handler) DashboardRoute(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Route: h.service.DashboardRoute(sess)})
}

type productResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Category   string `json:"category"`
	PriceCents int64  `json:"priceCents"`
}

type productListResponse struct {
	Products   []productResponse `json:"products"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	TotalPages int               `json:"totalPages"`
	Query      string            `json:"query"`
}

// ListProducts возвращает страницу каталога. Поле query содержит
// каноническую строку запроса для адресной строки клиента.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filters := listquery.Parse(r.URL.Query())

	listing, err := h.service.ListProducts(r.Context(), filters, defaultPageLimit)
	if err != nil {
		h.logger.Error("list products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	resp := productListResponse{
		Products:   make([]productResponse, 0, len(listing.Products)),
		Total:      listing.Total,
		Page:       listing.Page,
		TotalPages: listing.TotalPages,
		Query:      listing.Query,
	}
	for _, p := range listing.Products {
		resp.Products = append(resp.Products, productResponse{
			ID:         p.ID,
			Name:       p.Name,
			Type:       p.Type,
			Category:   p.Category,
			PriceCents: p.PriceCents,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type facetsResponse struct {
	Types      []string `json:"types"`
	Categories []string `json:"categories"`
}

// ProductFacets возвращает доступные значения фильтров каталога.
func (h *Handler) ProductFacets(w http.ResponseWriter, r *http.Request) {
	facets, err := h.service.ProductFacets(r.Context())
	if err != nil {
		h.logger.Error("product facets error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, facetsResponse{
		Types:      facets.Types,
		Categories: facets.Categories,
	})
}

type createIntentRequest struct {
	PackageID string `json:"packageId"`
}

type createIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	UniqueCode      string `json:"uniqueCode"`
}

// CreateIntent создаёт платёжное намерение для пакета.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PackageID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), sess, req.PackageID)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if errors.Is(err, payment.ErrIntentCreation) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create intent error", zap.Error(err), zap.String("package", req.PackageID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, createIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.PaymentIntentID,
		UniqueCode:      intent.UniqueCode,
	})
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	PaymentMethodID string `json:"paymentMethodId"`
	UniqueCode      string `json:"uniqueCode"`
}

type confirmResponse struct {
	Outcome     string `json:"outcome"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ConfirmPayment подтверждает платёж у провайдера. Отказ по вине карты —
// не ошибка запроса: форма остаётся редактируемой, сообщение уходит клиенту.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.PaymentIntentID == "" || req.PaymentMethodID == "" || !validation.IsValidUniqueCode(req.UniqueCode) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	conf, err := h.service.ConfirmPayment(r.Context(), req.PaymentIntentID, req.PaymentMethodID, req.UniqueCode)
	if conf == nil || (err != nil && !errors.Is(err, payment.ErrProcessorValidation)) {
		h.logger.Error("confirm payment error", zap.Error(err), zap.String("intent", req.PaymentIntentID))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{
		Outcome:     string(conf.Outcome),
		RedirectURL: conf.RedirectURL,
		Message:     conf.Message,
	})
}

type resultResponse struct {
	State      string `json:"state"`
	UniqueCode string `json:"uniqueCode,omitempty"`
	CanPlay    bool   `json:"canPlay"`
	Route      string `json:"route"`
}

// CheckoutResult ведёт длинный опрос записи транзакции до терминального
// состояния. Код покупки и действие "играть" не выдаются для пакетов с
// физической доставкой.
func (h *Handler) CheckoutResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	processorSessionID := r.URL.Query().Get("session_id")
	code := r.URL.Query().Get("code")

	if processorSessionID == "" && code == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if code != "" && !validation.IsValidUniqueCode(code) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	res, err := h.service.AwaitReconciliation(r.Context(), sess, processorSessionID, code)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Клиент ушёл со страницы, отвечать некому.
			return
		}
		h.logger.Error("checkout result error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := resultResponse{
		State: string(res.State),
		Route: h.service.DashboardRoute(sess),
	}
	if res.State == reconcile.StatePaid && res.Paid != nil && !res.Paid.PackageType.IsPhysical() {
		resp.UniqueCode = res.Paid.UniqueCode
		resp.CanPlay = true
	}

	writeJSON(w, http.StatusOK, resp)
}
