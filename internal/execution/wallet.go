package execution

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/sniperbot/engine/internal/amm"
)

// computeUnitLimit is a conservative fixed budget for a single swap
// instruction; real transactions would size this from simulation, which
// this engine does not have access to without a live cluster.
const computeUnitLimit = 200_000

// WalletSigner assembles and signs a transaction from an ed25519 keypair.
// Follows the crypto-adjacent fail-fast secret handling in
// cmd/engine/main.go's requireEnv shape, which feeds the raw key material
// in; crypto/ed25519 is standard library because no Solana-style
// transaction or keypair SDK exists anywhere in the retained stack.
type WalletSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewWalletSigner derives a signer from a raw 64-byte ed25519 private key
// seed+pubkey pair (the shape wallet.secret decodes to once loaded by its
// collaborator).
func NewWalletSigner(raw []byte) (*WalletSigner, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("execution: wallet secret must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	return &WalletSigner{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// PublicKey returns the wallet's address. Hex-encoded rather than
// base58-encoded: no base58 codec is on the retained stack, and the wire
// format is otherwise opaque to every caller in this module.
func (w *WalletSigner) PublicKey() string {
	return hex.EncodeToString(w.pub)
}

// assemblyPayload is the pre-signature byte layout: compute-unit budget,
// compute-unit price (derived from tip), priority tip, then the opaque
// instruction payload.
func (w *WalletSigner) assemble(ix amm.SwapInstruction, blockhash string, tip int64) []byte {
	buf := make([]byte, 0, 32+8+8+len(ix.Data)+len(ix.ProgramID)+len(blockhash))
	var tmp [8]byte

	binary.BigEndian.PutUint64(tmp[:], uint64(computeUnitLimit))
	buf = append(buf, tmp[:]...)

	binary.BigEndian.PutUint64(tmp[:], uint64(tip))
	buf = append(buf, tmp[:]...)

	buf = append(buf, []byte(blockhash)...)
	buf = append(buf, []byte(ix.ProgramID)...)
	for _, acct := range ix.Accounts {
		buf = append(buf, []byte(acct)...)
	}
	buf = append(buf, ix.Data...)
	return buf
}

// Sign assembles the transaction body and signs it once; BroadcastSend and
// Confirm may be retried against the same raw bytes without re-signing —
// duplicate sends of the same signature are a no-op.
func (w *WalletSigner) Sign(ctx context.Context, ix amm.SwapInstruction, blockhash string, tip int64) ([]byte, string, error) {
	body := w.assemble(ix, blockhash, tip)
	sig := ed25519.Sign(w.priv, body)

	rawTx := make([]byte, 0, len(sig)+len(body))
	rawTx = append(rawTx, sig...)
	rawTx = append(rawTx, body...)

	return rawTx, hex.EncodeToString(sig), nil
}
