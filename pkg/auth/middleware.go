package auth

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"verdant/pkg/response"
)

const walletAddressKey = "wallet_address"

// RequireWallet rejects requests without a valid bearer token and stores the
// authenticated wallet address on the gin context.
func RequireWallet(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			response.Abort(c, http.StatusUnauthorized, "missing auth token")
			return
		}

		address, err := AddressFromToken(strings.TrimPrefix(h, "Bearer "), secretKey)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(walletAddressKey, address)
		c.Next()
	}
}

// WalletFromContext returns the address set by RequireWallet.
func WalletFromContext(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(walletAddressKey)
	if !ok {
		return common.Address{}, false
	}
	address, ok := v.(common.Address)
	return address, ok
}

// SetWallet is used by tests and trusted internal routes to act as a wallet.
func SetWallet(c *gin.Context, address common.Address) {
	c.Set(walletAddressKey, address)
}
