package registry

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"verdant/pkg/auth"
	"verdant/pkg/response"
)

type mockRegistryService struct {
	mock.Mock
}

func (m *mockRegistryService) RegisterStartup(ctx context.Context, founder common.Address, name string) (Startup, error) {
	args := m.Called(ctx, founder, name)
	startup, _ := args.Get(0).(Startup)
	return startup, args.Error(1)
}

func (m *mockRegistryService) GetStartup(ctx context.Context, id uint64) (Startup, error) {
	args := m.Called(ctx, id)
	startup, _ := args.Get(0).(Startup)
	return startup, args.Error(1)
}

func (m *mockRegistryService) GetCapTable(ctx context.Context, id uint64) (CapTable, error) {
	args := m.Called(ctx, id)
	table, _ := args.Get(0).(CapTable)
	return table, args.Error(1)
}

func (m *mockRegistryService) SetCapTable(ctx context.Context, caller common.Address, id uint64, holders []common.Address, shares []*big.Int) (CapTable, error) {
	args := m.Called(ctx, caller, id, holders, shares)
	table, _ := args.Get(0).(CapTable)
	return table, args.Error(1)
}

func (m *mockRegistryService) NextStartupID(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockRegistryService) ListStartups(ctx context.Context, page, limit int) ([]Startup, int64, error) {
	args := m.Called(ctx, page, limit)
	startups, _ := args.Get(0).([]Startup)
	return startups, args.Get(1).(int64), args.Error(2)
}

func (m *mockRegistryService) ListStartupsByFounder(ctx context.Context, founder common.Address) ([]Startup, error) {
	args := m.Called(ctx, founder)
	startups, _ := args.Get(0).([]Startup)
	return startups, args.Error(1)
}

// actAs stands in for the JWT middleware.
func actAs(address common.Address) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.SetWallet(c, address)
		c.Next()
	}
}

func setupRouter(service RegistryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewRegistryHandler(service)
	h.RegisterRoutes(r, actAs(founderAddr))
	return r
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegistryHandler_RegisterStartup_Success(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	svc.On("RegisterStartup", mock.Anything, founderAddr, "Acme").
		Return(Startup{ID: 0, Founder: founderAddr, Name: "Acme"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/startups", strings.NewReader(`{"name":"  Acme  "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	require.Equal(t, "startup registered", resp.Message)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 0, data["id"])
	require.Equal(t, "Acme", data["name"])
	svc.AssertExpectations(t)
}

func TestRegistryHandler_RegisterStartup_BlankName(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/startups", strings.NewReader(`{"name":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, "startup name must be provided", resp.Message)
	svc.AssertNotCalled(t, "RegisterStartup", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistryHandler_RegisterStartup_RequiresWallet(t *testing.T) {
	svc := new(mockRegistryService)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewRegistryHandler(svc).RegisterRoutes(r, auth.RequireWallet([]byte("secret")))

	req := httptest.NewRequest(http.MethodPost, "/startups", strings.NewReader(`{"name":"Acme"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "RegisterStartup", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistryHandler_GetStartup_NotFound(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	svc.On("GetStartup", mock.Anything, uint64(12)).Return(Startup{}, ErrStartupNotFound)

	req := httptest.NewRequest(http.MethodGet, "/startups/12", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "startup not found", resp.Message)
}

func TestRegistryHandler_GetStartup_InvalidID(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/startups/-1", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, "invalid startup id", resp.Message)
	svc.AssertNotCalled(t, "GetStartup", mock.Anything, mock.Anything)
}

func TestRegistryHandler_GetCapTable_WithOwnership(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	svc.On("GetCapTable", mock.Anything, uint64(2)).Return(CapTable{
		StartupID: 2,
		Entries: []CapTableEntry{
			{Holder: founderAddr, Shares: big.NewInt(7500)},
			{Holder: otherAddr, Shares: big.NewInt(2500)},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/startups/2/cap-table", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	require.Equal(t, "10000", data["total_shares"])

	holdings := data["holdings"].([]any)
	require.Len(t, holdings, 2)
	require.Equal(t, "25.00", holdings[1].(map[string]any)["percent"])
}

func TestRegistryHandler_SetCapTable_Forbidden(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	svc.On("SetCapTable", mock.Anything, founderAddr, uint64(5), mock.Anything, mock.Anything).
		Return(CapTable{}, ErrNotFounder)

	body := `{"holders":["` + otherAddr.Hex() + `"],"shares":["100"]}`
	req := httptest.NewRequest(http.MethodPut, "/startups/5/cap-table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, "only the founder can update the cap table", resp.Message)
}

func TestRegistryHandler_SetCapTable_InvalidShares(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	body := `{"holders":["` + otherAddr.Hex() + `"],"shares":["-3"]}`
	req := httptest.NewRequest(http.MethodPut, "/startups/5/cap-table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "SetCapTable", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistryHandler_SetCapTable_Success(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	svc.On("SetCapTable", mock.Anything, founderAddr, uint64(5),
		[]common.Address{otherAddr}, mock.MatchedBy(func(shares []*big.Int) bool {
			return len(shares) == 1 && shares[0].Int64() == 100
		})).
		Return(CapTable{StartupID: 5, Entries: []CapTableEntry{{Holder: otherAddr, Shares: big.NewInt(100)}}}, nil)

	body := `{"holders":["` + otherAddr.Hex() + `"],"shares":["100"]}`
	req := httptest.NewRequest(http.MethodPut, "/startups/5/cap-table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, "cap table updated", resp.Message)
	svc.AssertExpectations(t)
}

func TestRegistryHandler_ListStartups_ClampsLimit(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	svc.On("ListStartups", mock.Anything, 1, 100).Return([]Startup{{ID: 0, Name: "A"}}, int64(1), nil)

	req := httptest.NewRequest(http.MethodGet, "/startups?limit=500", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	require.EqualValues(t, 100, data["limit"])
	require.EqualValues(t, 1, data["total"])
	svc.AssertExpectations(t)
}

func TestRegistryHandler_NextStartupID(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	svc.On("NextStartupID", mock.Anything).Return(uint64(7), nil)

	req := httptest.NewRequest(http.MethodGet, "/registry/next-id", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.EqualValues(t, 7, resp.Data.(map[string]any)["next_startup_id"])
}

func TestRegistryHandler_ListByFounder_InvalidAddress(t *testing.T) {
	svc := new(mockRegistryService)
	r := setupRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/founders/not-an-address/startups", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistryHandler_ListStartups_HugePage(t *testing.T) {
	service := NewRegistryService(NewMemoryStartupRepository())
	_, err := service.RegisterStartup(context.Background(), founderAddr, "Acme")
	require.NoError(t, err)
	r := setupRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/startups?page=4611686018427387904&limit=4", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	require.Empty(t, data["items"])
	require.EqualValues(t, 1, data["total"])
}
