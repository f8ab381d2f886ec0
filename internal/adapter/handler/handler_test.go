package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/sweet-shop/internal/adapter/storage"
	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

const testSecret = "handler-test-secret-0123456789"

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memoryGuard) SetIdempotency(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memoryGuard) ReleaseIdempotency(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

type testServer struct {
	e      *echo.Echo
	store  *storage.MemoryAdapter
	auth   *service.AuthService
	admin  string
	buyer  string
	userID string
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Count   *int            `json:"count"`
	Data    json.RawMessage `json:"data"`
	Token   string          `json:"token"`
	User    *domain.User    `json:"user"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewMemoryAdapter()
	tokens := service.NewTokenIssuer(testSecret, time.Hour)
	auth := service.NewAuthService(store, tokens, true, nil)
	inventory := service.NewInventoryService(store, &memoryGuard{keys: make(map[string]bool)}, nil, nil, nil)

	s := &testServer{
		e: NewRouter(RouterConfig{CORSOrigin: "http://localhost:5173"}, Dependencies{
			Inventory: inventory,
			Auth:      auth,
			Tokens:    tokens,
			Store:     store,
		}),
		store: store,
		auth:  auth,
	}

	admin, err := auth.Register(context.Background(), domain.RegisterInput{
		Name: "Admin", Email: "admin@example.com", Password: "secret123", Role: domain.RoleAdmin,
	})
	require.NoError(t, err)
	buyer, err := auth.Register(context.Background(), domain.RegisterInput{
		Name: "Buyer", Email: "buyer@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	s.admin = admin.Token
	s.buyer = buyer.Token
	s.userID = buyer.User.ID
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (int, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func (s *testServer) seed(t *testing.T, name string, category domain.Category, price float64, qty int) domain.Sweet {
	t.Helper()
	sweet, err := s.store.Insert(context.Background(), domain.Sweet{
		Name: name, Category: category, Price: price, Quantity: qty, CreatedBy: "seed",
	})
	require.NoError(t, err)
	return *sweet
}

func (s *testServer) quantityOf(t *testing.T, id string) int {
	t.Helper()
	sweet, err := s.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sweet)
	return sweet.Quantity
}

func decodeSweet(t *testing.T, raw json.RawMessage) domain.Sweet {
	t.Helper()
	var sweet domain.Sweet
	require.NoError(t, json.Unmarshal(raw, &sweet))
	return sweet
}

func decodeSweets(t *testing.T, raw json.RawMessage) []domain.Sweet {
	t.Helper()
	var sweets []domain.Sweet
	require.NoError(t, json.Unmarshal(raw, &sweets))
	return sweets
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSweets_RequireAuthentication(t *testing.T) {
	s := newTestServer(t)
	expired, err := service.NewTokenIssuer(testSecret, -time.Minute).Issue(domain.User{ID: "u1", Role: domain.RoleAdmin})
	require.NoError(t, err)
	foreign, err := service.NewTokenIssuer("some-other-secret-value", time.Hour).Issue(domain.User{ID: "u1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
		{"expired token", expired},
		{"wrong signature", foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, http.MethodGet, "/api/sweets", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.False(t, resp.Success)
			assert.Equal(t, "Not authorized to access this route", resp.Message)
		})
	}
}

func TestCreateSweet(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodPost, "/api/sweets", s.admin, map[string]any{
		"name": "Dark Truffle", "category": "Chocolate", "price": 2.5, "quantity": 50,
	})

	require.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
	sweet := decodeSweet(t, resp.Data)
	assert.NotEmpty(t, sweet.ID)
	assert.Equal(t, "Dark Truffle", sweet.Name)
	assert.Equal(t, domain.CategoryChocolate, sweet.Category)
	assert.Equal(t, 50, sweet.Quantity)
	assert.NotEmpty(t, sweet.CreatedBy)
}

func TestCreateSweet_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{
			name:    "invalid category",
			body:    map[string]any{"name": "Cake Pop", "category": "Cake", "price": 1, "quantity": 1},
			status:  http.StatusBadRequest,
			message: "Cake is not a valid category",
		},
		{
			name:    "price too high",
			body:    map[string]any{"name": "Gold Bar", "category": "Chocolate", "price": 20000},
			status:  http.StatusBadRequest,
			message: "Price cannot exceed $10,000",
		},
		{
			name:    "several problems",
			body:    map[string]any{"category": "Candy", "price": 0, "quantity": -1},
			status:  http.StatusBadRequest,
			message: "Please provide a sweet name, Price must be at least $0.01, Quantity cannot be negative",
		},
		{
			name:    "quantity above limit",
			body:    map[string]any{"name": "Bulk Bag", "category": "Candy", "price": 1, "quantity": int64(domain.MaxQuantity) + 1},
			status:  http.StatusBadRequest,
			message: "Quantity cannot exceed 2147483647",
		},
		{
			name:    "fractional cents",
			body:    map[string]any{"name": "Fancy Fudge", "category": "Chocolate", "price": 2.999},
			status:  http.StatusBadRequest,
			message: "Price cannot have more than 2 decimal places",
		},
		{
			name:    "malformed body",
			body:    `{"name": `,
			status:  http.StatusBadRequest,
			message: "Invalid request payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			code, resp := s.do(t, http.MethodPost, "/api/sweets", s.admin, tt.body)

			assert.Equal(t, tt.status, code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)

			all, err := s.store.FindAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestAdminRoutes_ForbiddenForUsers(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Lemon Drop", domain.CategoryHardCandy, 0.5, 0)

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/sweets", map[string]any{"name": "X", "category": "Candy", "price": 1}},
		{http.MethodPut, "/api/sweets/" + sweet.ID, map[string]any{"quantity": 99}},
		{http.MethodDelete, "/api/sweets/" + sweet.ID, nil},
		{http.MethodPost, "/api/sweets/" + sweet.ID + "/restock", map[string]any{"quantity": 10}},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			code, resp := s.do(t, tt.method, tt.path, s.buyer, tt.body)

			assert.Equal(t, http.StatusForbidden, code)
			assert.Equal(t, "User role 'user' is not authorized to access this route", resp.Message)
			assert.Equal(t, 0, s.quantityOf(t, sweet.ID))
		})
	}
}

func TestPurchase(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Gummy Bears", domain.CategoryGummy, 1.25, 10)

	code, resp := s.do(t, http.MethodPost, "/api/sweets/"+sweet.ID+"/purchase", s.buyer, map[string]any{"quantity": 3})

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Successfully purchased 3 Gummy Bears(s)", resp.Message)
	assert.Equal(t, 7, decodeSweet(t, resp.Data).Quantity)

	code, resp = s.do(t, http.MethodPost, "/api/sweets/"+sweet.ID+"/purchase", s.buyer, map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4, decodeSweet(t, resp.Data).Quantity)
	assert.Equal(t, 4, s.quantityOf(t, sweet.ID))
}

func TestPurchase_DefaultsToOne(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Rainbow Pop", domain.CategoryLollipop, 0.99, 5)

	code, resp := s.do(t, http.MethodPost, "/api/sweets/"+sweet.ID+"/purchase", s.buyer, nil)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Successfully purchased 1 Rainbow Pop(s)", resp.Message)
	assert.Equal(t, 4, s.quantityOf(t, sweet.ID))
}

func TestPurchase_Failures(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Caramel Chew", domain.CategoryCandy, 0.75, 2)

	tests := []struct {
		name    string
		id      string
		body    any
		status  int
		message string
	}{
		{"insufficient stock", sweet.ID, map[string]any{"quantity": 5}, http.StatusBadRequest, "Only 2 items available in stock"},
		{"zero quantity", sweet.ID, map[string]any{"quantity": 0}, http.StatusBadRequest, "Please provide a valid quantity"},
		{"negative quantity", sweet.ID, map[string]any{"quantity": -2}, http.StatusBadRequest, "Please provide a valid quantity"},
		{"unknown sweet", "does-not-exist", map[string]any{"quantity": 1}, http.StatusNotFound, "Sweet not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, http.MethodPost, "/api/sweets/"+tt.id+"/purchase", s.buyer, tt.body)

			assert.Equal(t, tt.status, code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, 2, s.quantityOf(t, sweet.ID))
		})
	}
}

func TestPurchase_IdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Mint Imperial", domain.CategoryHardCandy, 0.2, 10)
	path := "/api/sweets/" + sweet.ID + "/purchase"
	body := map[string]any{"quantity": 2}

	code, _ := s.do(t, http.MethodPost, path, s.buyer, body, HeaderIdempotencyKey, "order-1")
	require.Equal(t, http.StatusOK, code)

	code, resp := s.do(t, http.MethodPost, path, s.buyer, body, HeaderIdempotencyKey, "order-1")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Duplicate request", resp.Message)
	assert.Equal(t, 8, s.quantityOf(t, sweet.ID))

	code, _ = s.do(t, http.MethodPost, path, s.buyer, body, HeaderIdempotencyKey, "order-2")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 6, s.quantityOf(t, sweet.ID))
}

func TestPurchase_FailedAttemptReleasesKey(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Fudge", domain.CategoryChocolate, 3, 1)
	path := "/api/sweets/" + sweet.ID + "/purchase"

	code, _ := s.do(t, http.MethodPost, path, s.buyer, map[string]any{"quantity": 2}, HeaderIdempotencyKey, "retry-me")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, path, s.buyer, map[string]any{"quantity": 1}, HeaderIdempotencyKey, "retry-me")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, s.quantityOf(t, sweet.ID))
}

func TestRestock(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Sour Worms", domain.CategoryGummy, 1, 0)

	code, resp := s.do(t, http.MethodPost, "/api/sweets/"+sweet.ID+"/restock", s.admin, map[string]any{"quantity": 5})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Successfully restocked 5 Sour Worms(s)", resp.Message)
	assert.Equal(t, 5, decodeSweet(t, resp.Data).Quantity)

	code, resp = s.do(t, http.MethodPost, "/api/sweets/"+sweet.ID+"/restock", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Please provide a valid quantity", resp.Message)

	for _, qty := range []int64{domain.MaxQuantity, 1 << 62} {
		code, resp = s.do(t, http.MethodPost, "/api/sweets/"+sweet.ID+"/restock", s.admin, map[string]any{"quantity": qty})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Please provide a valid quantity", resp.Message)
	}

	code, resp = s.do(t, http.MethodPost, "/api/sweets/missing/restock", s.admin, map[string]any{"quantity": 5})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Sweet not found", resp.Message)

	assert.Equal(t, 5, s.quantityOf(t, sweet.ID))
}

func TestGetUpdateDelete(t *testing.T) {
	s := newTestServer(t)
	sweet := s.seed(t, "Toffee", domain.CategoryCandy, 1.5, 12)
	path := "/api/sweets/" + sweet.ID

	code, resp := s.do(t, http.MethodGet, path, s.buyer, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Toffee", decodeSweet(t, resp.Data).Name)

	code, resp = s.do(t, http.MethodPut, path, s.admin, map[string]any{"price": 1.75, "category": "Other"})
	require.Equal(t, http.StatusOK, code)
	updated := decodeSweet(t, resp.Data)
	assert.Equal(t, 1.75, updated.Price)
	assert.Equal(t, domain.CategoryOther, updated.Category)
	assert.Equal(t, 12, updated.Quantity)
	assert.Equal(t, "seed", updated.CreatedBy)

	code, resp = s.do(t, http.MethodPut, path, s.admin, map[string]any{"quantity": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Quantity cannot be negative", resp.Message)

	code, resp = s.do(t, http.MethodDelete, path, s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Sweet deleted successfully", resp.Message)

	code, resp = s.do(t, http.MethodGet, path, s.buyer, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Sweet not found", resp.Message)

	code, _ = s.do(t, http.MethodDelete, path, s.admin, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPut, path, s.admin, map[string]any{"price": 2})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListAndSearch(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "Milk Chocolate Bar", domain.CategoryChocolate, 2, 10)
	s.seed(t, "Chocolate Gummies", domain.CategoryGummy, 4, 10)
	s.seed(t, "Cherry Lollipop", domain.CategoryLollipop, 5, 10)
	s.seed(t, "Luxury Truffle", domain.CategoryChocolate, 12, 10)

	code, resp := s.do(t, http.MethodGet, "/api/sweets", s.buyer, nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 4, *resp.Count)
	assert.Equal(t, "Luxury Truffle", decodeSweets(t, resp.Data)[0].Name)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no filters", "", 4},
		{"name substring any case", "?name=CHOCOLATE", 2},
		{"category", "?category=Chocolate", 2},
		{"category all", "?category=All", 4},
		{"price range inclusive", "?minPrice=4&maxPrice=5", 2},
		{"min only", "?minPrice=5", 2},
		{"combined", "?name=chocolate&category=Gummy&maxPrice=4", 1},
		{"inverted range", "?minPrice=10&maxPrice=1", 0},
		{"unknown category", "?category=Cake", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, http.MethodGet, "/api/sweets/search"+tt.query, s.buyer, nil)
			require.Equal(t, http.StatusOK, code)
			require.NotNil(t, resp.Count)
			assert.Equal(t, tt.want, *resp.Count)
			assert.Len(t, decodeSweets(t, resp.Data), tt.want)
		})
	}

	for _, query := range []string{"minPrice=cheap", "minPrice=NaN&maxPrice=NaN", "minPrice=-Inf", "minPrice=1&maxPrice=+Inf"} {
		code, resp = s.do(t, http.MethodGet, "/api/sweets/search?"+query, s.buyer, nil)
		assert.Equal(t, http.StatusBadRequest, code, query)
		assert.Contains(t, resp.Message, "must be a number", query)
	}
}

func TestList_EmptyInventory(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/api/sweets", s.buyer, nil)

	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 0, *resp.Count)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/api/nothing-here", "", nil)

	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
}
