package adaptor

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func randKeyPair(t *testing.T, seed byte) (*btcec.PrivateKey, *btcec.PublicKey) {
	t.Helper()
	var buf [32]byte
	buf[31] = seed
	buf[0] = 7
	priv := secp256k1.PrivKeyFromBytes(buf[:])
	return priv, priv.PubKey()
}

func TestAdaptorSignVerifyDecrypt(t *testing.T) {
	signerPriv, signerPub := randKeyPair(t, 1)
	tScalarPriv, tPub := randKeyPair(t, 2)

	hash := sha256.Sum256([]byte("cet sighash for outcome 0"))

	sig, err := Sign(signerPriv, tPub, hash[:])
	require.NoError(t, err)

	require.NoError(t, Verify(sig, signerPub, tPub, hash[:]))

	var tScalar secp256k1.ModNScalar
	tScalar.Set(&tScalarPriv.Key)

	decrypted, err := Decrypt(sig, &tScalar)
	require.NoError(t, err)
	require.True(t, decrypted.Verify(hash[:], signerPub))
}

func TestAdaptorVerifyRejectsTamperedSignature(t *testing.T) {
	signerPriv, signerPub := randKeyPair(t, 3)
	_, tPub := randKeyPair(t, 4)

	hash := sha256.Sum256([]byte("cet sighash for outcome 1"))

	sig, err := Sign(signerPriv, tPub, hash[:])
	require.NoError(t, err)

	tampered := *sig
	tampered.SPrime.Add(&tampered.SPrime) // double it, definitely different

	require.Error(t, Verify(&tampered, signerPub, tPub, hash[:]))
}

func TestAdaptorVerifyRejectsWrongEncryptionPoint(t *testing.T) {
	signerPriv, signerPub := randKeyPair(t, 5)
	_, tPub := randKeyPair(t, 6)
	_, otherPub := randKeyPair(t, 7)

	hash := sha256.Sum256([]byte("cet sighash for outcome 2"))

	sig, err := Sign(signerPriv, tPub, hash[:])
	require.NoError(t, err)

	require.Error(t, Verify(sig, signerPub, otherPub, hash[:]))
}

func TestSerializeRoundTrip(t *testing.T) {
	signerPriv, _ := randKeyPair(t, 8)
	_, tPub := randKeyPair(t, 9)

	hash := sha256.Sum256([]byte("cet sighash for outcome 3"))
	sig, err := Sign(signerPriv, tPub, hash[:])
	require.NoError(t, err)

	encoded := sig.Serialize()
	require.Len(t, encoded, 161)

	decoded, err := ParseSignature(encoded)
	require.NoError(t, err)
	require.True(t, decoded.R.Equals(&sig.R))
	require.True(t, decoded.SPrime.Equals(&sig.SPrime))
}

func TestCombineOutcomePointsAndAttestationScalars(t *testing.T) {
	oraclePriv1, _ := randKeyPair(t, 10)
	noncePriv1, _ := randKeyPair(t, 11)
	oraclePriv2, _ := randKeyPair(t, 12)
	noncePriv2, _ := randKeyPair(t, 13)

	msg := sha256.Sum256([]byte("digit 1 at position 0"))

	var pubX1, nonceX1, pubX2, nonceX2 [32]byte
	copy(pubX1[:], oraclePriv1.PubKey().SerializeCompressed()[1:])
	copy(nonceX1[:], noncePriv1.PubKey().SerializeCompressed()[1:])
	copy(pubX2[:], oraclePriv2.PubKey().SerializeCompressed()[1:])
	copy(nonceX2[:], noncePriv2.PubKey().SerializeCompressed()[1:])

	t1, err := OutcomePoint(nonceX1, pubX1, msg)
	require.NoError(t, err)
	t2, err := OutcomePoint(nonceX2, pubX2, msg)
	require.NoError(t, err)

	combined, err := CombineOutcomePoints([]*btcec.PublicKey{t1, t2})
	require.NoError(t, err)
	require.NotNil(t, combined)
}
