package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"verdant/pkg/response"
)

var fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(secret, time.Hour)
	h.now = func() time.Time { return fixedNow }
	h.RegisterRoutes(r)

	r.GET("/me", RequireWallet(secret), func(c *gin.Context) {
		addr, ok := WalletFromContext(c)
		if !ok {
			response.SendAPIResponse(c, http.StatusInternalServerError, false, "wallet missing", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusOK, true, "ok", gin.H{"address": addr.Hex()})
	})
	return r
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthHandler_LoginMessage(t *testing.T) {
	r := setupRouter()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	req := httptest.NewRequest(http.MethodGet, "/auth/message?address="+addr.Hex(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	require.Equal(t, LoginMessage(addr, fixedNow), data["message"])

	req = httptest.NewRequest(http.MethodGet, "/auth/message?address=bogus", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func walletLoginBody(addr common.Address, issuedAt time.Time, sig []byte) string {
	body, _ := json.Marshal(map[string]any{
		"address":   addr.Hex(),
		"issued_at": issuedAt,
		"signature": hexutil.Encode(sig),
	})
	return string(body)
}

func TestAuthHandler_WalletLoginThenProtectedRoute(t *testing.T) {
	r := setupRouter()
	key, addr := newKey(t)
	issuedAt := fixedNow.Add(-time.Minute)
	sig := personalSign(t, key, LoginMessage(addr, issuedAt))

	req := httptest.NewRequest(http.MethodPost, "/auth/wallet", strings.NewReader(walletLoginBody(addr, issuedAt, sig)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	token := resp.Data.(map[string]any)["token"].(string)
	require.NotEmpty(t, token)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, addr.Hex(), decodeResponse(t, w).Data.(map[string]any)["address"])
}

func TestAuthHandler_WalletLoginFailures(t *testing.T) {
	r := setupRouter()
	key, addr := newKey(t)
	_, otherAddr := newKey(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "missing fields",
			body:     `{"address":"` + addr.Hex() + `"}`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "invalid request payload",
		},
		{
			name:     "bad signature hex",
			body:     `{"address":"` + addr.Hex() + `","issued_at":"2025-06-01T09:59:00Z","signature":"zz"}`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "invalid signature encoding",
		},
		{
			name:     "expired message",
			body:     walletLoginBody(addr, fixedNow.Add(-time.Hour), personalSign(t, key, LoginMessage(addr, fixedNow.Add(-time.Hour)))),
			wantCode: http.StatusUnauthorized,
			wantMsg:  "login message expired",
		},
		{
			name:     "signed by someone else",
			body:     walletLoginBody(otherAddr, fixedNow, personalSign(t, key, LoginMessage(otherAddr, fixedNow))),
			wantCode: http.StatusUnauthorized,
			wantMsg:  "signature verification failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/wallet", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			require.Equal(t, tt.wantMsg, decodeResponse(t, w).Message)
		})
	}
}

func TestRequireWallet_Rejects(t *testing.T) {
	r := setupRouter()

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code, header)
		require.False(t, decodeResponse(t, w).Success)
	}
}
