// Package dlctest provides reusable external-collaborator test doubles —
// Wallet, ContractSignerProvider, Blockchain, Time, and a BIP340-capable
// Oracle — shared by contractupdater's and dlcmanager's test suites.
// Grounded on the unexported test doubles of
// contractupdater/contractupdater_test.go, promoted here so both packages
// exercise the same fakes instead of each maintaining its own copy.
package dlctest

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/contract"
)

// Oracle manually constructs BIP340 signatures for a chosen nonce, so the
// attestation's revealed nonce matches the one recorded in the
// announcement — something the real schnorr.Sign API (which derives its
// own nonce) can't be made to do on demand.
type Oracle struct {
	priv *secp256k1.PrivateKey
}

// NewOracle returns a fresh Oracle with a random keypair.
func NewOracle(t *testing.T) *Oracle {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return &Oracle{priv: priv}
}

// PublicKey returns the oracle's x-only public key.
func (o *Oracle) PublicKey() [32]byte {
	pub := o.priv.PubKey()
	var out [32]byte
	copy(out[:], pub.SerializeCompressed()[1:])
	return out
}

// Announce picks a fresh nonce and returns its x-only encoding along with
// the scalar needed to later Sign with it.
func (o *Oracle) Announce(t *testing.T) (nonceX [32]byte, k *secp256k1.ModNScalar) {
	t.Helper()
	nPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	k = &nPriv.Key

	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &r)
	r.ToAffine()
	if r.Y.IsOdd() {
		k.Negate()
		secp256k1.ScalarBaseMultNonConst(k, &r)
		r.ToAffine()
	}
	xBytes := r.X.Bytes()
	copy(nonceX[:], xBytes[:])
	return nonceX, k
}

// Sign produces a valid 64-byte BIP340 signature over msg using a
// previously announced nonce k.
func (o *Oracle) Sign(t *testing.T, k *secp256k1.ModNScalar, msg [32]byte) [64]byte {
	t.Helper()

	d := o.priv.Key
	var pubJ secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&d, &pubJ)
	pubJ.ToAffine()
	if pubJ.Y.IsOdd() {
		d.Negate()
	}

	var rJ secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &rJ)
	rJ.ToAffine()
	rXBytes := rJ.X.Bytes()

	pubXBytes := o.PublicKey()

	challenge := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, rXBytes[:], pubXBytes[:], msg[:])
	var e secp256k1.ModNScalar
	e.SetByteSlice(challenge[:])

	var s secp256k1.ModNScalar
	s.Set(&e)
	s.Mul(&d)
	s.Add(k)

	var out [64]byte
	copy(out[:32], rXBytes[:])
	sBytes := s.Bytes()
	copy(out[32:], sBytes[:])
	return out
}

// EnumOutcomeMessage hashes an enum outcome string the way
// OracleAttestation.Validate expects a signed message to be derived.
func EnumOutcomeMessage(outcome string) [32]byte {
	return sha256.Sum256([]byte(outcome))
}

// FeedOracle implements external.Oracle by serving one fixed announcement
// and, once armed, one fixed attestation — a scripted stand-in for
// dlcmanager's periodic attestation fetch, as opposed to Oracle above
// which only helps construct signatures by hand for contractupdater's
// lower-level tests.
type FeedOracle struct {
	Ann  *contract.OracleAnnouncement
	Att  *contract.OracleAttestation
	Fail bool
}

func (f *FeedOracle) PublicKey() [32]byte { return f.Ann.PublicKey }

func (f *FeedOracle) GetAnnouncement(ctx context.Context, eventID string) (*contract.OracleAnnouncement, error) {
	return f.Ann, nil
}

func (f *FeedOracle) GetAttestation(ctx context.Context, eventID string) (*contract.OracleAttestation, error) {
	if f.Fail || f.Att == nil {
		return nil, errNotYetAvailable
	}
	return f.Att, nil
}

var errNotYetAvailable = &notAvailableError{}

type notAvailableError struct{}

func (*notAvailableError) Error() string { return "attestation not yet available" }
