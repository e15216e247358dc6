package adaptor

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/btcdlc/dlcd/dlcerr"
)

// OutcomePoint computes the BIP340 Schnorr "signature point" T = R + e*P
// that an oracle's attestation over msg (a single digit or outcome label,
// already hashed to 32 bytes) would reveal the discrete log of, given its
// announced nonce point nonceX and public key pubKeyX (both 32-byte
// x-only encodings). Spec §4.B "the signature points predicted by the
// oracle's announced nonces and the digits of outcome i".
func OutcomePoint(nonceX, pubKeyX [32]byte, msg [32]byte) (*btcec.PublicKey, error) {
	r, err := schnorr.ParsePubKey(nonceX[:])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "invalid oracle nonce point")
	}
	p, err := schnorr.ParsePubKey(pubKeyX[:])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "invalid oracle public key")
	}

	challenge := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, nonceX[:], pubKeyX[:], msg[:])

	var e secp256k1.ModNScalar
	e.SetByteSlice(challenge[:])

	var rJacobian, pJacobian, eP, t jacPoint
	r.AsJacobian(&rJacobian)
	p.AsJacobian(&pJacobian)
	secp256k1.ScalarMultNonConst(&e, &pJacobian, &eP)
	secp256k1.AddNonConst(&rJacobian, &eP, &t)
	t.ToAffine()
	if t.X.IsZero() && t.Y.IsZero() {
		return nil, dlcerr.New(dlcerr.CryptoVerification, "outcome point is the identity")
	}

	return affineToPubKey(&t), nil
}

// CombineOutcomePoints sums the per-oracle outcome points of a
// threshold-matching set of oracles into the single point T_i an adaptor
// signature for CET i is encrypted to. Spec §4.B "sum, over all attesting
// oracles in a threshold-matching combination".
func CombineOutcomePoints(points []*btcec.PublicKey) (*btcec.PublicKey, error) {
	if len(points) == 0 {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "no outcome points to combine")
	}

	var sum jacPoint
	points[0].AsJacobian(&sum)
	for _, p := range points[1:] {
		var next, pj jacPoint
		p.AsJacobian(&pj)
		secp256k1.AddNonConst(&sum, &pj, &next)
		sum = next
	}
	sum.ToAffine()
	if sum.X.IsZero() && sum.Y.IsZero() {
		return nil, dlcerr.New(dlcerr.CryptoVerification, "combined outcome point is the identity")
	}

	return affineToPubKey(&sum), nil
}

// AttestationScalar extracts the scalar s from a 64-byte BIP340 Schnorr
// attestation signature (R || s). Because the signature satisfies
// s*G = R + e*P, s is exactly the scalar the oracle's announced outcome
// point decrypts under — no further computation needed. Spec §4.B "the
// scalars whose sum equals t_i".
func AttestationScalar(sig []byte) (*secp256k1.ModNScalar, error) {
	if len(sig) != 64 {
		return nil, dlcerr.New(dlcerr.InvalidParameters,
			"schnorr attestation must be 64 bytes, got %d", len(sig))
	}

	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(sig[32:64])
	if overflow {
		return nil, dlcerr.New(dlcerr.CryptoVerification, "attestation scalar overflowed the curve order")
	}
	return &s, nil
}

// CombineAttestationScalars sums the per-oracle attestation scalars of a
// threshold-matching set of oracles into the single decryption scalar
// t_i satisfying t_i*G = T_i.
func CombineAttestationScalars(scalars []*secp256k1.ModNScalar) (*secp256k1.ModNScalar, error) {
	if len(scalars) == 0 {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "no attestation scalars to combine")
	}

	var sum secp256k1.ModNScalar
	for _, s := range scalars {
		sum.Add(s)
	}
	return &sum, nil
}
