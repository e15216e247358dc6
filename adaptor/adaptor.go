// Package adaptor implements the ECDSA adaptor signature scheme used to
// bind a CET spend to an oracle's not-yet-revealed attestation (spec §4.B,
// component B). A signature is encrypted to a point T; given any scalar t
// with t*G = T, it decrypts to an ordinary, verifiable ECDSA signature.
//
// There is no teacher or example-pack Go source for this primitive (it
// lives in a C library, secp256k1-zkp, in the original implementation) so
// the scheme below follows the published Chaum-Pedersen-proof construction
// that library implements, built directly on the same
// decred/dcrd/dcrec/secp256k1 point and scalar arithmetic that
// btcsuite/btcd/btcec/v2 itself wraps.
package adaptor

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/btcdlc/dlcd/dlcerr"
)

// Signature is an ECDSA signature encrypted to a point T, plus a
// Chaum-Pedersen proof binding the plain nonce commitment RA to the
// T-scaled commitment implicit in R/SPrime, so a verifier can reject a
// malformed ciphertext before ever learning t (spec §4.B "well-formed").
type Signature struct {
	// RA is the plain nonce commitment k*G.
	RA *btcec.PublicKey
	// R is the x-coordinate, reduced mod N, of k*T. It becomes the r
	// component of the decrypted ECDSA signature.
	R secp256k1.ModNScalar
	// SPrime is the encrypted s component: s' = k^-1 * (h + R*x).
	SPrime secp256k1.ModNScalar
	// ProofE / ProofS are the Chaum-Pedersen proof (e, s) that
	// log_G(RA) == log_T(k*T).
	ProofE secp256k1.ModNScalar
	ProofS secp256k1.ModNScalar
}

// SignatureSize is the fixed encoded length of a Signature: RA (33,
// compressed) || R (32) || SPrime (32) || ProofE (32) || ProofS (32).
const SignatureSize = 161

// Serialize encodes the signature as RA (33, compressed) || R (32) ||
// SPrime (32) || ProofE (32) || ProofS (32) bytes, matching the
// fixed-width encoding of other DLC wire fields (spec §6).
func (s *Signature) Serialize() []byte {
	out := make([]byte, 0, SignatureSize)
	out = append(out, s.RA.SerializeCompressed()...)
	rBytes := s.R.Bytes()
	spBytes := s.SPrime.Bytes()
	eBytes := s.ProofE.Bytes()
	psBytes := s.ProofS.Bytes()
	out = append(out, rBytes[:]...)
	out = append(out, spBytes[:]...)
	out = append(out, eBytes[:]...)
	out = append(out, psBytes[:]...)
	return out
}

// ParseSignature decodes a Signature from its 161-byte encoding.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, dlcerr.New(dlcerr.InvalidParameters,
			"adaptor signature must be 161 bytes, got %d", len(b))
	}

	ra, err := btcec.ParsePubKey(b[0:33])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.CryptoVerification, err, "invalid adaptor nonce commitment")
	}

	var sig Signature
	sig.RA = ra
	overflow := sig.R.SetByteSlice(b[33:65])
	overflow = sig.SPrime.SetByteSlice(b[65:97]) || overflow
	overflow = sig.ProofE.SetByteSlice(b[97:129]) || overflow
	overflow = sig.ProofS.SetByteSlice(b[129:161]) || overflow
	if overflow {
		return nil, dlcerr.New(dlcerr.CryptoVerification,
			"adaptor signature scalar overflowed the curve order")
	}
	return &sig, nil
}

// Sign produces an ECDSA adaptor signature on hash (a 32-byte sighash)
// under privKey, encrypted to encryptionPoint. Spec §4.B "compute an
// adaptor signature... encrypted to T_i".
func Sign(privKey *btcec.PrivateKey, encryptionPoint *btcec.PublicKey, hash []byte) (*Signature, error) {
	if len(hash) != 32 {
		return nil, dlcerr.New(dlcerr.InvalidParameters,
			"sighash must be 32 bytes, got %d", len(hash))
	}

	var hashScalar secp256k1.ModNScalar
	hashScalar.SetByteSlice(hash)

	privBytes := privKey.Key.Bytes()
	k := deterministicNonce(privBytes[:], hash,
		append([]byte("dlc/adaptor/nonce"), encryptionPoint.SerializeCompressed()...))
	if k.IsZero() {
		return nil, dlcerr.New(dlcerr.CryptoVerification, "degenerate zero nonce")
	}

	var kG jacPoint
	secp256k1.ScalarBaseMultNonConst(k, &kG)
	kG.ToAffine()
	if kG.X.IsZero() && kG.Y.IsZero() {
		return nil, dlcerr.New(dlcerr.CryptoVerification, "nonce point is the identity")
	}
	raPub := affineToPubKey(&kG)

	var tJacobian jacPoint
	encryptionPoint.AsJacobian(&tJacobian)
	var kT jacPoint
	secp256k1.ScalarMultNonConst(k, &tJacobian, &kT)
	kT.ToAffine()
	if kT.X.IsZero() && kT.Y.IsZero() {
		return nil, dlcerr.New(dlcerr.CryptoVerification, "encrypted nonce point is the identity")
	}

	var rX secp256k1.ModNScalar
	rX.SetByteSlice(kT.X.Bytes()[:])

	var kInv secp256k1.ModNScalar
	kInv.Set(k)
	kInv.InverseValNonConst()

	priv := privKey.Key
	var sPrime secp256k1.ModNScalar
	sPrime.Set(&rX)
	sPrime.Mul(&priv)
	sPrime.Add(&hashScalar)
	sPrime.Mul(&kInv)
	if sPrime.IsZero() {
		return nil, dlcerr.New(dlcerr.CryptoVerification, "degenerate zero signature")
	}

	proofE, proofS := proveDLEQ(k, &kG, &kT, encryptionPoint, hash)

	return &Signature{
		RA:     raPub,
		R:      rX,
		SPrime: sPrime,
		ProofE: proofE,
		ProofS: proofS,
	}, nil
}

// Verify checks that sig is a well-formed adaptor signature on hash under
// pubKey, encrypted to encryptionPoint. The verification equation
// recovers the plain nonce commitment k*G, which must equal RA; R is then
// lifted back to the T-scaled commitment k*T and the Chaum-Pedersen proof
// that RA and k*T share a discrete log relative to G and encryptionPoint
// respectively is checked, all without ever learning the decryption
// scalar t (spec §4.B).
func Verify(sig *Signature, pubKey, encryptionPoint *btcec.PublicKey, hash []byte) error {
	if len(hash) != 32 {
		return dlcerr.New(dlcerr.InvalidParameters, "sighash must be 32 bytes, got %d", len(hash))
	}
	if sig.SPrime.IsZero() || sig.R.IsZero() {
		return dlcerr.New(dlcerr.CryptoVerification, "adaptor signature has a zero component")
	}

	var hashScalar secp256k1.ModNScalar
	hashScalar.SetByteSlice(hash)

	var sPrimeInv secp256k1.ModNScalar
	sPrimeInv.Set(&sig.SPrime)
	sPrimeInv.InverseValNonConst()

	var u1, u2 secp256k1.ModNScalar
	u1.Set(&hashScalar)
	u1.Mul(&sPrimeInv)
	u2.Set(&sig.R)
	u2.Mul(&sPrimeInv)

	var term1, term2, kG jacPoint
	secp256k1.ScalarBaseMultNonConst(&u1, &term1)

	var pubJacobian jacPoint
	pubKey.AsJacobian(&pubJacobian)
	secp256k1.ScalarMultNonConst(&u2, &pubJacobian, &term2)

	secp256k1.AddNonConst(&term1, &term2, &kG)
	kG.ToAffine()
	if kG.X.IsZero() && kG.Y.IsZero() {
		return dlcerr.New(dlcerr.CryptoVerification, "adaptor signature recovers to the identity point")
	}

	var raJacobian jacPoint
	sig.RA.AsJacobian(&raJacobian)
	if !kG.X.Equals(&raJacobian.X) || !kG.Y.Equals(&raJacobian.Y) {
		return dlcerr.New(dlcerr.CryptoVerification, "adaptor signature does not match its nonce commitment")
	}

	// R carries only the x-coordinate of k*T, so try both y parities.
	rBytes := sig.R.Bytes()
	var kT jacPoint
	kT.X.SetByteSlice(rBytes[:])
	kT.Z.SetInt(1)
	for _, odd := range []bool{false, true} {
		if secp256k1.DecompressY(&kT.X, odd, &kT.Y) &&
			verifyDLEQ(sig.ProofE, sig.ProofS, &raJacobian, &kT, encryptionPoint) {
			return nil
		}
	}

	return dlcerr.New(dlcerr.CryptoVerification, "adaptor signature DLEQ proof is invalid")
}

// Decrypt combines an adaptor signature with the revealed scalar t
// (t*G == encryptionPoint used at Sign time) to produce an ordinary,
// broadcastable, low-S-normalized ECDSA signature. Spec §4.B
// "Decrypt(σ_adapt, t_i)".
func Decrypt(sig *Signature, t *secp256k1.ModNScalar) (*ecdsa.Signature, error) {
	if t.IsZero() {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "decryption scalar must be non-zero")
	}

	var tInv secp256k1.ModNScalar
	tInv.Set(t)
	tInv.InverseValNonConst()

	var s secp256k1.ModNScalar
	s.Set(&sig.SPrime)
	s.Mul(&tInv)
	if s.IsOverHalfOrder() {
		s.Negate()
	}

	r := sig.R
	return ecdsa.NewSignature(&r, &s), nil
}

// jacPoint is a local alias kept short for readability in the point-math
// heavy functions below.
type jacPoint = secp256k1.JacobianPoint

// affineToPubKey builds a btcec public key from an already-affine
// Jacobian point.
func affineToPubKey(p *jacPoint) *btcec.PublicKey {
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// proveDLEQ builds a Chaum-Pedersen proof that the discrete log of kG
// (base G) equals the discrete log of kT (base encryptionPoint), both
// equal to k, binding the adaptor ciphertext to the nonce commitment RA
// transmitted alongside it.
func proveDLEQ(k *secp256k1.ModNScalar, kG, kT *jacPoint, encryptionPoint *btcec.PublicKey,
	hash []byte) (e, s secp256k1.ModNScalar) {

	r := deterministicNonce(k.Bytes()[:], hash, []byte("dlc/adaptor/dleq"))

	var a1, a2, tJacobian jacPoint
	secp256k1.ScalarBaseMultNonConst(r, &a1)
	encryptionPoint.AsJacobian(&tJacobian)
	secp256k1.ScalarMultNonConst(r, &tJacobian, &a2)
	a1.ToAffine()
	a2.ToAffine()

	e = dleqChallenge(kG, kT, &a1, &a2, encryptionPoint)

	s.Set(r)
	var ek secp256k1.ModNScalar
	ek.Set(&e)
	ek.Mul(k)
	s.Add(&ek)

	return e, s
}

// verifyDLEQ checks the Chaum-Pedersen proof (e, s) that log_G(p1) ==
// log_T(p2) by recomputing both commitments as s*base - e*p and comparing
// the resulting challenge to e.
func verifyDLEQ(e, s secp256k1.ModNScalar, p1, p2 *jacPoint, encryptionPoint *btcec.PublicKey) bool {
	var negE secp256k1.ModNScalar
	negE.Set(&e)
	negE.Negate()

	var sG, eP1, a1 jacPoint
	secp256k1.ScalarBaseMultNonConst(&s, &sG)
	secp256k1.ScalarMultNonConst(&negE, p1, &eP1)
	secp256k1.AddNonConst(&sG, &eP1, &a1)
	a1.ToAffine()

	var tJacobian, sT, eP2, a2 jacPoint
	encryptionPoint.AsJacobian(&tJacobian)
	secp256k1.ScalarMultNonConst(&s, &tJacobian, &sT)
	secp256k1.ScalarMultNonConst(&negE, p2, &eP2)
	secp256k1.AddNonConst(&sT, &eP2, &a2)
	a2.ToAffine()

	expected := dleqChallenge(p1, p2, &a1, &a2, encryptionPoint)
	return expected.Equals(&e)
}

// dleqChallenge hashes the Chaum-Pedersen transcript (both commitments,
// both proof nonces, and the T base point) into a challenge scalar via
// Fiat-Shamir.
func dleqChallenge(p1, p2, a1, a2 *jacPoint, encryptionPoint *btcec.PublicKey) secp256k1.ModNScalar {
	h := sha256.New()
	h.Write([]byte("DLC/adaptor/DLEQ"))
	h.Write(jacobianToCompressed(p1))
	h.Write(jacobianToCompressed(p2))
	h.Write(jacobianToCompressed(a1))
	h.Write(jacobianToCompressed(a2))
	h.Write(encryptionPoint.SerializeCompressed())
	digest := h.Sum(nil)

	var e secp256k1.ModNScalar
	e.SetByteSlice(digest)
	return e
}

// jacobianToCompressed serializes a Jacobian point (affine or not) in
// compressed SEC1 form.
func jacobianToCompressed(p *jacPoint) []byte {
	affine := *p
	affine.ToAffine()
	pub := btcec.NewPublicKey(&affine.X, &affine.Y)
	return pub.SerializeCompressed()
}

// deterministicNonce derives a per-signature scalar from seed, message,
// and a domain-separation tag, following the RFC6979-style deterministic
// nonce generation the rest of the ecosystem (decred/btcec) relies on
// instead of raw randomness, so repeated signing of the same CET under the
// same key never reuses a nonce across distinct encryption points or
// between the signature and its DLEQ proof.
func deterministicNonce(seed, hash, tag []byte) *secp256k1.ModNScalar {
	extra := sha256.Sum256(append(append([]byte{}, tag...), hash...))
	return secp256k1.NonceRFC6979(seed, hash, extra[:], nil, 0)
}
