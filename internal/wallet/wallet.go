package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the local signing key. The key never leaves this package;
// callers get the address and a signing primitive, nothing else.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  coretypes.Signer
}

// New derives a wallet from a hex-encoded secp256k1 private key. The chain ID
// is baked into the signer so transactions cannot be replayed across networks.
func New(hexKey string, chainID *big.Int) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("wallet private key is required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("wallet chain id is required")
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		signer:  coretypes.LatestSignerForChainID(chainID),
	}, nil
}

// Address returns the wallet's public address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the network the wallet signs for.
func (w *Wallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// SignTx signs the transaction with the wallet key.
func (w *Wallet) SignTx(tx *coretypes.Transaction) (*coretypes.Transaction, error) {
	if w == nil || w.key == nil {
		return nil, errors.New("wallet not initialised")
	}
	signed, err := coretypes.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// SignMessage signs an arbitrary message using the standard Ethereum
// personal-message prefix.
func (w *Wallet) SignMessage(message []byte) ([]byte, error) {
	if w == nil || w.key == nil {
		return nil, errors.New("wallet not initialised")
	}
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := crypto.Keccak256([]byte(prefixed))
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return sig, nil
}
