package dlcwire

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/txbuilder"
)

func randPrivKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func sampleContractInfo() contract.ContractInfo {
	return contract.ContractInfo{
		Announcements: []contract.OracleAnnouncement{{
			PublicKey: [32]byte{7},
			EventID:   "weather-2026",
			Descriptor: contract.EventDescriptor{
				Kind:     contract.EventEnum,
				Outcomes: []string{"sunny", "rainy"},
			},
			Nonces: [][32]byte{{8}},
		}},
		Threshold:       1,
		TotalCollateral: 200000,
		Outcomes: []contract.Outcome{
			{Path: []byte{0}, Payout: txbuilder.PayoutEntry{OfferSats: 200000, AcceptSats: 0}},
			{Path: []byte{1}, Payout: txbuilder.PayoutEntry{OfferSats: 0, AcceptSats: 200000}},
		},
	}
}

func sampleFundingInput(serial uint64) txbuilder.FundingInput {
	var hash chainhash.Hash
	hash[0] = byte(serial)
	return txbuilder.FundingInput{
		Outpoint:      wire.OutPoint{Hash: hash, Index: 0},
		PrevTxOut:     &wire.TxOut{Value: 150000, PkScript: []byte{0x00, 0x14, 1, 2, 3}},
		MaxWitnessLen: 108,
		RedeemScript:  nil,
		SerialID:      serial,
	}
}

func sampleAdaptorSignature(t *testing.T) adaptor.Signature {
	t.Helper()
	signerKey := randPrivKey(t)
	tScalar := randPrivKey(t)
	encPoint := tScalar.PubKey()

	var hash [32]byte
	_, err := rand.Read(hash[:])
	require.NoError(t, err)

	sig, err := adaptor.Sign(signerKey, encPoint, hash[:])
	require.NoError(t, err)
	return *sig
}

func sampleECDSASignature(t *testing.T) ecdsa.Signature {
	t.Helper()
	priv := randPrivKey(t)
	hash := sha256.Sum256([]byte("dlcwire test"))
	return *ecdsa.Sign(priv, hash[:])
}

func TestOfferRoundTrip(t *testing.T) {
	offer := &Offer{
		ProtocolVersion:      1,
		ChainHash:            chainhash.Hash{1, 2, 3},
		TemporaryContractID:  contract.ID{4, 5, 6},
		ContractInfo:         []contract.ContractInfo{sampleContractInfo()},
		FundingPubKey:        randPrivKey(t).PubKey(),
		ChangeScript:         []byte{0x00, 0x14, 9, 9, 9},
		PayoutScript:         []byte{0x00, 0x14, 8, 8, 8},
		OfferCollateral:      100000,
		FundingInputs:        []txbuilder.FundingInput{sampleFundingInput(1), sampleFundingInput(2)},
		ChangeSerialID:       10,
		PayoutSerialID:       11,
		FundOutputSerialID:   12,
		FeeRatePerVByte:      5,
		CetLockTime:          600000,
		RefundLockTime:       700000,
	}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, offer)
	require.NoError(t, err)

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)

	got, ok := msg.(*Offer)
	require.True(t, ok)
	require.Equal(t, offer.ProtocolVersion, got.ProtocolVersion)
	require.Equal(t, offer.ChainHash, got.ChainHash)
	require.Equal(t, offer.TemporaryContractID, got.TemporaryContractID)
	require.Equal(t, offer.OfferCollateral, got.OfferCollateral)
	require.Equal(t, offer.CetLockTime, got.CetLockTime)
	require.Equal(t, offer.RefundLockTime, got.RefundLockTime)
	require.Len(t, got.FundingInputs, 2)
	require.Equal(t, offer.FundingInputs[1].SerialID, got.FundingInputs[1].SerialID)
	require.True(t, offer.FundingPubKey.IsEqual(got.FundingPubKey))
	require.Len(t, got.ContractInfo, 1)
	require.Equal(t, offer.ContractInfo[0].Outcomes, got.ContractInfo[0].Outcomes)
}

func TestAcceptRoundTrip(t *testing.T) {
	accept := &Accept{
		TemporaryContractID: contract.ID{1},
		AcceptCollateral:     100000,
		FundingPubKey:        randPrivKey(t).PubKey(),
		ChangeScript:         []byte{0x00, 0x14, 1},
		PayoutScript:         []byte{0x00, 0x14, 2},
		FundingInputs:        []txbuilder.FundingInput{sampleFundingInput(3)},
		ChangeSerialID:       20,
		PayoutSerialID:       21,
		CetAdaptorSignatures: [][]adaptor.Signature{{sampleAdaptorSignature(t), sampleAdaptorSignature(t)}},
		RefundSignature:      sampleECDSASignature(t),
	}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, accept)
	require.NoError(t, err)

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)

	got, ok := msg.(*Accept)
	require.True(t, ok)
	require.Equal(t, accept.TemporaryContractID, got.TemporaryContractID)
	require.Equal(t, accept.AcceptCollateral, got.AcceptCollateral)
	require.Len(t, got.CetAdaptorSignatures, 1)
	require.Len(t, got.CetAdaptorSignatures[0], 2)
	require.Equal(t, accept.CetAdaptorSignatures[0][0].Serialize(), got.CetAdaptorSignatures[0][0].Serialize())
	require.Equal(t, accept.RefundSignature.Serialize(), got.RefundSignature.Serialize())
}

func TestSignRoundTrip(t *testing.T) {
	sign := &Sign{
		ContractID:           contract.ID{9, 9},
		CetAdaptorSignatures: [][]adaptor.Signature{{sampleAdaptorSignature(t)}},
		RefundSignature:      sampleECDSASignature(t),
		FundingSignatures: []wire.TxWitness{
			{[]byte{1, 2, 3}, []byte{4, 5}},
			{[]byte{6}},
		},
	}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, sign)
	require.NoError(t, err)

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)

	got, ok := msg.(*Sign)
	require.True(t, ok)
	require.Equal(t, sign.ContractID, got.ContractID)
	require.Equal(t, sign.FundingSignatures, got.FundingSignatures)
}

func TestCloseRoundTrip(t *testing.T) {
	closeMsg := &Close{
		ContractID:      contract.ID{3},
		CloseSignature:  sampleECDSASignature(t),
		AcceptPayout:    btcutil.Amount(50000),
		FeeRatePerVByte: 3,
		Inputs: []wire.OutPoint{
			{Hash: chainhash.Hash{1}, Index: 0},
		},
	}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, closeMsg)
	require.NoError(t, err)

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)

	got, ok := msg.(*Close)
	require.True(t, ok)
	require.Equal(t, closeMsg.ContractID, got.ContractID)
	require.Equal(t, closeMsg.AcceptPayout, got.AcceptPayout)
	require.Equal(t, closeMsg.Inputs, got.Inputs)
}

func TestReadMessageRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeUint16(&buf, 9999))
	_, err := ReadMessage(&buf)
	require.Error(t, err)
}
