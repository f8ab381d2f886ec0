package handler

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type SweetHandler struct {
	inventory *service.InventoryService
	logger    *zap.Logger
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func NewSweetHandler(inventory *service.InventoryService, logger *zap.Logger) *SweetHandler {
	return &SweetHandler{inventory: inventory, logger: logger}
}

// List returns every sweet --> GET /api/sweets
func (h *SweetHandler) List(c echo.Context) error {
	sweets, err := h.inventory.List(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, list(sweets))
}

// Search filters by name, category and price range --> GET /api/sweets/search
func (h *SweetHandler) Search(c echo.Context) error {
	params, err := searchParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, envelope{Message: err.Error()})
	}

	sweets, err := h.inventory.Search(c.Request().Context(), params)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, list(sweets))
}

// Get returns one sweet --> GET /api/sweets/:id
func (h *SweetHandler) Get(c echo.Context) error {
	sweet, err := h.inventory.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: sweet})
}

// Create adds a sweet --> POST /api/sweets
func (h *SweetHandler) Create(c echo.Context) error {
	var draft domain.SweetDraft
	if err := c.Bind(&draft); err != nil {
		return fail(c, h.logger, errInvalidPayload)
	}

	sweet, err := h.inventory.Create(c.Request().Context(), draft, claimsFrom(c).Subject)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, envelope{Success: true, Data: sweet})
}

// Update changes any admin-settable field --> PUT /api/sweets/:id
func (h *SweetHandler) Update(c echo.Context) error {
	var patch domain.SweetPatch
	if err := c.Bind(&patch); err != nil {
		return fail(c, h.logger, errInvalidPayload)
	}

	sweet, err := h.inventory.Update(c.Request().Context(), c.Param("id"), patch, claimsFrom(c).Subject)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: sweet})
}

// Delete removes a sweet --> DELETE /api/sweets/:id
func (h *SweetHandler) Delete(c echo.Context) error {
	if err := h.inventory.Delete(c.Request().Context(), c.Param("id"), claimsFrom(c).Subject); err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "Sweet deleted successfully"})
}

// Purchase takes stock, one item when no quantity is sent --> POST /api/sweets/:id/purchase
func (h *SweetHandler) Purchase(c echo.Context) error {
	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, h.logger, errInvalidPayload)
	}

	receipt, err := h.inventory.Purchase(c.Request().Context(), service.PurchaseRequest{
		SweetID:        c.Param("id"),
		Quantity:       req.Quantity,
		BuyerID:        claimsFrom(c).Subject,
		IdempotencyKey: strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey)),
	})
	if err != nil {
		return fail(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Successfully purchased %d %s(s)", receipt.Quantity, receipt.Sweet.Name),
		Data:    receipt.Sweet,
	})
}

// Restock adds stock --> POST /api/sweets/:id/restock
func (h *SweetHandler) Restock(c echo.Context) error {
	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, h.logger, errInvalidPayload)
	}

	receipt, err := h.inventory.Restock(c.Request().Context(), c.Param("id"), req.Quantity, claimsFrom(c).Subject)
	if err != nil {
		return fail(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Successfully restocked %d %s(s)", receipt.Quantity, receipt.Sweet.Name),
		Data:    receipt.Sweet,
	})
}

func searchParams(c echo.Context) (domain.SearchParams, error) {
	params := domain.SearchParams{
		Name:     c.QueryParam("name"),
		Category: c.QueryParam("category"),
	}

	var err error
	if params.MinPrice, err = priceParam(c, "minPrice"); err != nil {
		return params, err
	}
	if params.MaxPrice, err = priceParam(c, "maxPrice"); err != nil {
		return params, err
	}
	return params, nil
}

func priceParam(c echo.Context, name string) (*float64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &v, nil
}
