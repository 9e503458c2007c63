package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"verdant/pkg/response"
)

type AuthHandler struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewAuthHandler(secretKey []byte, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{secretKey: secretKey, tokenTTL: tokenTTL, now: time.Now}
}

func (h *AuthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/auth/message", h.loginMessage)
	router.POST("/auth/wallet", h.walletLogin)
}

type loginMessageResponse struct {
	Message  string    `json:"message"`
	IssuedAt time.Time `json:"issued_at"`
}

type walletLoginRequest struct {
	Address   string    `json:"address" binding:"required"`
	IssuedAt  time.Time `json:"issued_at" binding:"required"`
	Signature string    `json:"signature" binding:"required"`
}

type walletLoginResponse struct {
	Token     string         `json:"token"`
	Address   common.Address `json:"address"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (h *AuthHandler) loginMessage(c *gin.Context) {
	raw := c.Query("address")
	if !common.IsHexAddress(raw) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid address", nil)
		return
	}

	issuedAt := h.now().UTC().Truncate(time.Second)
	response.SendAPIResponse(c, http.StatusOK, true, "sign this message", loginMessageResponse{
		Message:  LoginMessage(common.HexToAddress(raw), issuedAt),
		IssuedAt: issuedAt,
	})
}

func (h *AuthHandler) walletLogin(c *gin.Context) {
	var req walletLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	if !common.IsHexAddress(req.Address) {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid address", nil)
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid signature encoding", nil)
		return
	}

	address := common.HexToAddress(req.Address)
	if err := VerifyLogin(address, req.IssuedAt, sig, h.now()); err != nil {
		if errors.Is(err, ErrMessageExpired) {
			response.SendAPIResponse(c, http.StatusUnauthorized, false, "login message expired", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "signature verification failed", nil)
		return
	}

	token, err := GenerateToken(address, h.secretKey, h.tokenTTL)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "wallet authenticated", walletLoginResponse{
		Token:     token,
		Address:   address,
		ExpiresAt: h.now().Add(h.tokenTTL),
	})
}
