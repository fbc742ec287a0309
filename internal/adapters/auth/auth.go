// Package auth resuelve la identidad del caller.
//
// Las identidades son direcciones Ethereum. El caller firma un mensaje de
// operación con EIP-191 (personal_sign) y Verifier recupera la dirección de la
// firma: si no coincide con la identidad declarada, la operación no se ejecuta.
package auth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Message construye el texto que se firma para una operación.
func Message(op, launchID string, fields ...string) string {
	parts := append([]string{"oods", op, launchID}, fields...)
	return strings.Join(parts, ":")
}

// Signer firma mensajes de operación con una clave privada secp256k1.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner acepta la clave en hex, con o sin prefijo 0x.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Identity es la dirección checksummed de la clave.
func (s *Signer) Identity() domain.Identity {
	return domain.Identity(s.address.Hex())
}

// Sign devuelve una Credential lista para Verify.
func (s *Signer) Sign(message string) (ports.Credential, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return ports.Credential{}, fmt.Errorf("auth.Sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27 // formato personal_sign
	return ports.Credential{Identity: s.Identity(), Message: message, Signature: sig}, nil
}

// Verifier implementa ports.Authenticator recuperando el firmante.
type Verifier struct{}

var _ ports.Authenticator = Verifier{}

func (Verifier) Verify(_ context.Context, c ports.Credential) (domain.Identity, error) {
	const op = "authenticate"
	if !common.IsHexAddress(string(c.Identity)) {
		return "", domain.Errorf(domain.KindNotAuthorized, op, "%q is not an address", c.Identity)
	}
	if len(c.Signature) != crypto.SignatureLength {
		return "", domain.Errorf(domain.KindNotAuthorized, op, "signature must be %d bytes, got %d", crypto.SignatureLength, len(c.Signature))
	}

	sig := make([]byte, len(c.Signature))
	copy(sig, c.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(c.Message)), sig)
	if err != nil {
		return "", domain.Errorf(domain.KindNotAuthorized, op, "recover signer: %v", err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	claimed := common.HexToAddress(string(c.Identity))
	if signer != claimed {
		return "", domain.Errorf(domain.KindNotAuthorized, op, "signature is from %s, not %s", signer.Hex(), claimed.Hex())
	}
	return domain.Identity(claimed.Hex()), nil
}

// Trusted acepta la identidad declarada sin firma. Solo para ejecuciones
// locales con auth.require_signatures=false.
type Trusted struct{}

var _ ports.Authenticator = Trusted{}

func (Trusted) Verify(_ context.Context, c ports.Credential) (domain.Identity, error) {
	if c.Identity == "" {
		return "", domain.Errorf(domain.KindNotAuthorized, "authenticate", "identity is required")
	}
	if common.IsHexAddress(string(c.Identity)) {
		return domain.Identity(common.HexToAddress(string(c.Identity)).Hex()), nil
	}
	return c.Identity, nil
}
