package txbuilder

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/dlcerr"
)

// newParty returns a PartyParams with a single plain funding input of
// inputValue, a fresh funding pubkey, and change/payout scripts tagged
// with tag so two parties in the same test never collide.
func newParty(t *testing.T, tag byte, inputValue, collateral btcutil.Amount, serialBase uint64) *PartyParams {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var hash chainhash.Hash
	hash[0] = tag

	return &PartyParams{
		FundingPubKey:  priv.PubKey(),
		ChangeScript:   []byte{0x00, 0x14, tag, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18},
		PayoutScript:   []byte{0x00, 0x14, tag, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 34, 35},
		ChangeSerialID: serialBase + 1,
		PayoutSerialID: serialBase + 2,
		FundingInputs: []FundingInput{{
			Outpoint:      wire.OutPoint{Hash: hash, Index: 0},
			PrevTxOut:     wire.NewTxOut(int64(inputValue), []byte{0x00, 0x14, tag}),
			MaxWitnessLen: 108,
			SerialID:      serialBase,
		}},
		CollateralAmount: collateral,
		InputAmount:      inputValue,
	}
}

func testBuildParams(t *testing.T, offer, accept *PartyParams) BuildParams {
	t.Helper()
	return BuildParams{
		Offer:              offer,
		Accept:             accept,
		Payouts:            []PayoutEntry{{OfferSats: offer.CollateralAmount + accept.CollateralAmount, AcceptSats: 0}},
		RefundLockTime:     700000,
		CetLockTime:        600000,
		FeeRatePerVByte:    1,
		FundOutputSerialID: 500,
	}
}

func TestBuildFundingTxOrdersInputsBySerialID(t *testing.T) {
	// accept's serial id (10) sorts before offer's (20), so accept's
	// input must land first in the funding transaction despite being
	// added to the set second.
	offer := newParty(t, 1, 150000, 100000, 20)
	accept := newParty(t, 2, 150000, 100000, 10)

	p := testBuildParams(t, offer, accept)
	txs, err := Build(p)
	require.NoError(t, err)

	require.Len(t, txs.Fund.TxIn, 2)
	require.Equal(t, accept.FundingInputs[0].Outpoint, txs.Fund.TxIn[0].PreviousOutPoint)
	require.Equal(t, offer.FundingInputs[0].Outpoint, txs.Fund.TxIn[1].PreviousOutPoint)
}

func TestBuildFundingTxOrdersOutputsBySerialID(t *testing.T) {
	offer := newParty(t, 1, 150000, 100000, 20)
	accept := newParty(t, 2, 150000, 100000, 10)

	p := testBuildParams(t, offer, accept)
	p.FundOutputSerialID = 15 // between accept's change (11) and offer's change (21)

	txs, err := Build(p)
	require.NoError(t, err)

	require.Len(t, txs.Fund.TxOut, 3)
	require.Equal(t, accept.ChangeScript, txs.Fund.TxOut[0].PkScript)
	require.Equal(t, txs.FundingScriptPubKey, txs.Fund.TxOut[1].PkScript)
	require.Equal(t, offer.ChangeScript, txs.Fund.TxOut[2].PkScript)
	require.Equal(t, 1, txs.FundOutputIndex)
}

func TestBuildOmitsDustChangeOutput(t *testing.T) {
	// accept contributes exactly its collateral, leaving no change; its
	// change output must be omitted rather than created as a dust output.
	offer := newParty(t, 1, 150000, 100000, 20)
	accept := newParty(t, 2, 100000, 100000, 10)

	p := testBuildParams(t, offer, accept)
	txs, err := Build(p)
	require.NoError(t, err)

	require.Len(t, txs.Fund.TxOut, 2, "accept's change output should have been dropped as dust")
	for _, out := range txs.Fund.TxOut {
		require.NotEqual(t, accept.ChangeScript, out.PkScript)
	}
}

func TestBuildRejectsPayoutNotSummingToCollateral(t *testing.T) {
	offer := newParty(t, 1, 150000, 100000, 20)
	accept := newParty(t, 2, 150000, 100000, 10)

	p := testBuildParams(t, offer, accept)
	p.Payouts = []PayoutEntry{{OfferSats: 100000, AcceptSats: 50000}}

	_, err := Build(p)
	require.Error(t, err)
	kind, ok := dlcerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, dlcerr.InvalidParameters, kind)
}

func TestBuildCETSpendsFundingOutpointWithLockTimeAndSequence(t *testing.T) {
	offer := newParty(t, 1, 150000, 100000, 20)
	accept := newParty(t, 2, 150000, 100000, 10)

	p := testBuildParams(t, offer, accept)
	txs, err := Build(p)
	require.NoError(t, err)

	require.Len(t, txs.Cets, 1)
	cet := txs.Cets[0]
	require.Len(t, cet.TxIn, 1)
	fundOutpoint := wire.OutPoint{Hash: txs.Fund.TxHash(), Index: uint32(txs.FundOutputIndex)}
	require.Equal(t, fundOutpoint, cet.TxIn[0].PreviousOutPoint)
	require.Equal(t, cetSequence, cet.TxIn[0].Sequence)
	require.Equal(t, p.CetLockTime, cet.LockTime)
	require.Len(t, cet.TxOut, 1, "the losing party's zero-sats output should have been omitted as dust")
	require.Equal(t, offer.PayoutScript, cet.TxOut[0].PkScript)
}

func TestBuildRefundTxSplitsCollateralMinusHalfFee(t *testing.T) {
	offer := newParty(t, 1, 150000, 100000, 20)
	accept := newParty(t, 2, 150000, 100000, 10)

	p := testBuildParams(t, offer, accept)
	txs, err := Build(p)
	require.NoError(t, err)

	require.Len(t, txs.Refund.TxIn, 1)
	require.Equal(t, refundSequence, txs.Refund.TxIn[0].Sequence)
	require.Equal(t, p.RefundLockTime, txs.Refund.LockTime)

	fee := FundingFeeReserve(p.FeeRatePerVByte, len(offer.PayoutScript), len(accept.PayoutScript))
	halfFee := btcutil.Amount(fee / 2)

	require.Len(t, txs.Refund.TxOut, 2)
	total := txs.Refund.TxOut[0].Value + txs.Refund.TxOut[1].Value
	require.Equal(t, int64(offer.CollateralAmount+accept.CollateralAmount)-2*int64(halfFee), total)
}

func TestBuildIsDeterministic(t *testing.T) {
	offer := newParty(t, 1, 150000, 100000, 20)
	accept := newParty(t, 2, 150000, 100000, 10)

	p := testBuildParams(t, offer, accept)

	first, err := Build(p)
	require.NoError(t, err)
	second, err := Build(p)
	require.NoError(t, err)

	require.Equal(t, first.Fund.TxHash(), second.Fund.TxHash())
	require.Equal(t, first.Cets[0].TxHash(), second.Cets[0].TxHash())
	require.Equal(t, first.Refund.TxHash(), second.Refund.TxHash())
}

func TestBuildSplicesInDlcInput(t *testing.T) {
	// accept funds entirely via a spliced-in prior DLC's funding output
	// instead of a plain wallet UTXO.
	offer := newParty(t, 1, 150000, 100000, 20)

	localPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	remotePriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var priorHash chainhash.Hash
	priorHash[5] = 0xaa
	dlcIn := DlcInput{
		Outpoint:         wire.OutPoint{Hash: priorHash, Index: 0},
		Value:            150000,
		LocalFundPubKey:  localPriv.PubKey(),
		RemoteFundPubKey: remotePriv.PubKey(),
		ContractID:       [32]byte{0x42},
		SerialID:         5, // sorts before offer's plain input (serial 20)
	}

	accept := &PartyParams{
		FundingPubKey:    localPriv.PubKey(),
		ChangeScript:     []byte{0x00, 0x14, 2},
		PayoutScript:     []byte{0x00, 0x14, 2, 1},
		ChangeSerialID:   11,
		PayoutSerialID:   12,
		DlcInputs:        []DlcInput{dlcIn},
		CollateralAmount: 150000,
		InputAmount:      150000,
	}

	p := testBuildParams(t, offer, accept)
	txs, err := Build(p)
	require.NoError(t, err)

	require.Len(t, txs.Fund.TxIn, 2)
	require.Equal(t, dlcIn.Outpoint, txs.Fund.TxIn[0].PreviousOutPoint)
	require.Equal(t, cetSequence, txs.Fund.TxIn[0].Sequence)
	require.Equal(t, offer.FundingInputs[0].Outpoint, txs.Fund.TxIn[1].PreviousOutPoint)

	redeem, err := dlcIn.redeemScript()
	require.NoError(t, err)

	for _, in := range txs.Fund.TxIn {
		if in.PreviousOutPoint == dlcIn.Outpoint {
			require.Nil(t, in.Witness, "buildFundingTx must not itself place a witness on the unsigned tx")
		}
	}
	require.NotEmpty(t, redeem)

	// accept's change should still be dropped: its only input (the
	// spliced dlc input) exactly covers its collateral.
	require.Len(t, txs.Fund.TxOut, 2)
}

func TestFundOutputPositionReturnsMinusOneWhenAbsent(t *testing.T) {
	outputs := []serialOutput{{serialID: 1, txOut: wire.NewTxOut(1000, nil)}}
	require.Equal(t, -1, fundOutputPosition(outputs, wire.NewTxOut(2000, nil)))
}
