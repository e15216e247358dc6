package adaptor

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/btcdlc/dlcd/dlcerr"
)

// SignPlain produces an ordinary (non-adaptor) low-S ECDSA signature over
// hash, used for the refund transaction and funding-input signatures.
// Spec §4.B "Refund: a standard (non-adaptor) ECDSA signature".
func SignPlain(privKey *btcec.PrivateKey, hash []byte) (*ecdsa.Signature, error) {
	if len(hash) != 32 {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "sighash must be 32 bytes, got %d", len(hash))
	}
	return ecdsa.Sign(privKey, hash), nil
}

// VerifyPlain checks an ordinary ECDSA signature over hash under pubKey.
func VerifyPlain(sig *ecdsa.Signature, pubKey *btcec.PublicKey, hash []byte) error {
	if len(hash) != 32 {
		return dlcerr.New(dlcerr.InvalidParameters, "sighash must be 32 bytes, got %d", len(hash))
	}
	if !sig.Verify(hash, pubKey) {
		return dlcerr.New(dlcerr.CryptoVerification, "signature verification failed")
	}
	return nil
}
