package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeHash fingerprints a registration the way the contract does:
// keccak256(abi.encodePacked(id, name, founder, createdAt)).
func ComputeHash(id uint64, name string, founder common.Address, createdAt int64) common.Hash {
	return crypto.Keccak256Hash(
		math.U256Bytes(new(big.Int).SetUint64(id)),
		[]byte(name),
		founder.Bytes(),
		math.U256Bytes(big.NewInt(createdAt)),
	)
}

// VerifyHash recomputes the fingerprint of s and compares it to the stored one.
func VerifyHash(s Startup) bool {
	return ComputeHash(s.ID, s.Name, s.Founder, s.CreatedAt.Unix()) == s.Hash
}
