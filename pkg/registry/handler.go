package registry

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"verdant/pkg/auth"
	"verdant/pkg/captable"
	"verdant/pkg/response"
)

type RegistryHandler struct {
	service RegistryService
}

func NewRegistryHandler(service RegistryService) *RegistryHandler {
	return &RegistryHandler{service: service}
}

// RegisterRoutes mounts the registry API. Writes go through requireWallet,
// which must put the caller's address on the context.
func (h *RegistryHandler) RegisterRoutes(router *gin.Engine, requireWallet gin.HandlerFunc) {
	router.POST("/startups", requireWallet, h.registerStartup)
	router.GET("/startups", h.listStartups)
	router.GET("/startups/:id", h.getStartup)
	router.GET("/startups/:id/cap-table", h.getCapTable)
	router.PUT("/startups/:id/cap-table", requireWallet, h.setCapTable)
	router.GET("/registry/next-id", h.nextStartupID)
	router.GET("/founders/:address/startups", h.listStartupsByFounder)
}

type registerStartupRequest struct {
	Name string `json:"name" binding:"required"`
}

type setCapTableRequest struct {
	Holders []string `json:"holders"`
	Shares  []string `json:"shares"`
}

type capTableResponse struct {
	StartupID uint64          `json:"startup_id"`
	Entries   []CapTableEntry `json:"entries"`
	captable.Summary
}

type nextStartupIDResponse struct {
	NextStartupID uint64 `json:"next_startup_id"`
}

func parseStartupID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid startup id", nil)
		return 0, false
	}
	return id, true
}

func newCapTableResponse(t CapTable) capTableResponse {
	entries := t.Entries
	if entries == nil {
		entries = []CapTableEntry{}
	}
	return capTableResponse{
		StartupID: t.StartupID,
		Entries:   entries,
		Summary:   captable.Breakdown(t.Holders(), t.Shares()),
	}
}

func (h *RegistryHandler) registerStartup(c *gin.Context) {
	founder, ok := auth.WalletFromContext(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "wallet not authenticated", nil)
		return
	}

	var req registerStartupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "startup name must be provided", nil)
		return
	}

	startup, err := h.service.RegisterStartup(c.Request.Context(), founder, name)
	if err != nil {
		if errors.Is(err, ErrZeroFounder) {
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusCreated, true, "startup registered", startup)
}

func (h *RegistryHandler) getStartup(c *gin.Context) {
	id, ok := parseStartupID(c)
	if !ok {
		return
	}

	startup, err := h.service.GetStartup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrStartupNotFound) {
			response.SendAPIResponse(c, http.StatusNotFound, false, "startup not found", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "startup fetched", startup)
}

func (h *RegistryHandler) listStartups(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	items, total, err := h.service.ListStartups(c.Request.Context(), page, limit)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	data := StartupList{Items: items, Total: total, Page: page, Limit: limit}
	response.SendAPIResponse(c, http.StatusOK, true, "startups listed", data)
}

func (h *RegistryHandler) listStartupsByFounder(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid founder address", nil)
		return
	}

	items, err := h.service.ListStartupsByFounder(c.Request.Context(), common.HexToAddress(raw))
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	data := StartupList{Items: items, Total: int64(len(items))}
	response.SendAPIResponse(c, http.StatusOK, true, "startups fetched by founder", data)
}

func (h *RegistryHandler) getCapTable(c *gin.Context) {
	id, ok := parseStartupID(c)
	if !ok {
		return
	}

	table, err := h.service.GetCapTable(c.Request.Context(), id)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "cap table fetched", newCapTableResponse(table))
}

func (h *RegistryHandler) setCapTable(c *gin.Context) {
	caller, ok := auth.WalletFromContext(c)
	if !ok {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "wallet not authenticated", nil)
		return
	}

	id, ok := parseStartupID(c)
	if !ok {
		return
	}

	var req setCapTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	holders := make([]common.Address, len(req.Holders))
	for i, raw := range req.Holders {
		if !common.IsHexAddress(raw) {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid holder address", nil)
			return
		}
		holders[i] = common.HexToAddress(raw)
	}

	shares := make([]*big.Int, len(req.Shares))
	for i, raw := range req.Shares {
		v, err := ParseShares(raw)
		if err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid share count", nil)
			return
		}
		shares[i] = v
	}

	table, err := h.service.SetCapTable(c.Request.Context(), caller, id, holders, shares)
	if err != nil {
		switch {
		case errors.Is(err, ErrStartupNotFound):
			response.SendAPIResponse(c, http.StatusNotFound, false, "startup not found", nil)
		case errors.Is(err, ErrNotFounder):
			response.SendAPIResponse(c, http.StatusForbidden, false, "only the founder can update the cap table", nil)
		case errors.Is(err, ErrCapTableLengthMismatch), errors.Is(err, ErrInvalidShares):
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		default:
			response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		}
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "cap table updated", newCapTableResponse(table))
}

func (h *RegistryHandler) nextStartupID(c *gin.Context) {
	next, err := h.service.NextStartupID(c.Request.Context())
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "next startup id", nextStartupIDResponse{NextStartupID: next})
}
