// Package backend предоставляет клиент внешнего платёжного и каталожного API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-gateway/internal/listquery"
	"github.com/mmeshcher/checkout-gateway/internal/model"
)

// ErrUnauthorized возвращается, если бэкенд отверг токен авторизации.
var (
	ErrUnauthorized = errors.New("backend rejected auth token")
	// ErrNotFound возвращается при отсутствии запрошенной записи.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPackageRejected возвращается, если бэкенд не принял пакет
	// при создании платёжного намерения.
	ErrPackageRejected = errors.New("package rejected by backend")
)

// Client инкапсулирует HTTP-взаимодействие с внешним бэкендом.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент бэкенда по указанному базовому адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

func (c *Client) endpoint(path string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("backend client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return base + path, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) (int, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return 0, err
	}

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, ErrUnauthorized
	}

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// LoginResult содержит токен бэкенда и профиль пользователя.
type LoginResult struct {
	Token string
	User  model.User
}

type loginResponse struct {
	Token          string `json:"token"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId,omitempty"`
	SchoolID       string `json:"schoolId,omitempty"`
}

// Login обменивает учётные данные на токен и профиль пользователя.
func (c *Client) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	body := map[string]string{"login": login, "password": password}

	var resp loginResponse
	_, err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", body, &resp)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	return &LoginResult{
		Token: resp.Token,
		User: model.User{
			Role:           model.Role(resp.Role),
			OrganizationID: resp.OrganizationID,
			SchoolID:       resp.SchoolID,
		},
	}, nil
}

// IntentResponse описывает созданное бэкендом платёжное намерение.
type IntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	UniqueCode      string `json:"uniqueCode"`
}

// CreatePaymentIntent создаёт платёжное намерение для пакета.
func (c *Client) CreatePaymentIntent(ctx context.Context, token, packageID string) (*IntentResponse, error) {
	body := map[string]string{"packageId": packageID}

	var resp IntentResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/payments/create-payment-intent", token, body, &resp)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, ErrUnauthorized
		}
		if status >= 400 && status < 500 {
			return nil, fmt.Errorf("%w: package %s", ErrPackageRejected, packageID)
		}
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &resp, nil
}

// TransactionByCode запрашивает запись транзакции по коду покупки.
func (c *Client) TransactionByCode(ctx context.Context, token, code string) (*model.RawTransaction, error) {
	var raw model.RawTransaction
	_, err := c.doJSON(ctx, http.MethodGet, "/payments/transaction/"+url.PathEscape(code), token, nil, &raw)
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

// TransactionBySession запрашивает запись транзакции по идентификатору
// платёжной сессии. До материализации записи бэкенд может вернуть
// частичную форму без _id.
func (c *Client) TransactionBySession(ctx context.Context, token, sessionID string) (*model.RawTransaction, error) {
	var raw model.RawTransaction
	_, err := c.doJSON(ctx, http.MethodGet, "/payments/transaction-by-session/"+url.PathEscape(sessionID), token, nil, &raw)
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

// ProductPage описывает страницу каталога.
type ProductPage struct {
	Products   []model.Product
	Total      int
	Page       int
	TotalPages int
}

type productJSON struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Billing  string  `json:"billingType,omitempty"`
}

type productsResponse struct {
	Products   []productJSON `json:"products"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
}

func (p productJSON) toModel() model.Product {
	return model.Product{
		ID:         p.ID,
		Name:       p.Name,
		Type:       p.Type,
		Category:   p.Category,
		PriceCents: decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Billing:    model.BillingType(p.Billing),
	}
}

// Products запрашивает страницу каталога с учётом фильтров.
func (c *Client) Products(ctx context.Context, f listquery.Filters, limit int) (*ProductPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("limit", strconv.Itoa(limit))
	if f.Type != "" && f.Type != listquery.All {
		q.Set("type", f.Type)
	}
	if f.Category != "" && f.Category != listquery.All {
		q.Set("category", f.Category)
	}

	var resp productsResponse
	_, err := c.doJSON(ctx, http.MethodGet, "/products?"+q.Encode(), "", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	page := &ProductPage{
		Products:   make([]model.Product, 0, len(resp.Products)),
		Total:      resp.Total,
		Page:       resp.Page,
		TotalPages: resp.TotalPages,
	}
	for _, p := range resp.Products {
		page.Products = append(page.Products, p.toModel())
	}

	return page, nil
}

// Facets содержит доступные значения фильтров каталога.
type Facets struct {
	Types      []string
	Categories []string
}

// ProductFacets запрашивает полный каталог и выводит из него
// множества доступных типов и категорий. Запрос независим от пагинации.
func (c *Client) ProductFacets(ctx context.Context) (*Facets, error) {
	var all []productJSON
	_, err := c.doJSON(ctx, http.MethodGet, "/products?all=true", "", nil, &all)
	if err != nil {
		return nil, fmt.Errorf("list facets: %w", err)
	}

	types := map[string]bool{}
	categories := map[string]bool{}
	for _, p := range all {
		if p.Type != "" {
			types[p.Type] = true
		}
		if p.Category != "" {
			categories[p.Category] = true
		}
	}

	return &Facets{
		Types:      sortedKeys(types),
		Categories: sortedKeys(categories),
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
