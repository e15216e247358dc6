package dlcstore

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
)

func roundTrip(t *testing.T, c *contract.Contract) *contract.Contract {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeContract(&buf, c))
	got, err := DecodeContract(&buf)
	require.NoError(t, err)
	return got
}

func sampleFundTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: 150000, PkScript: []byte{0x00, 0x14}})
	return tx
}

func TestEncodeDecodeOfferedContract(t *testing.T) {
	offered := sampleOffered(t, 1)
	c := &contract.Contract{Stage: contract.StageOffered, Offered: offered}

	got := roundTrip(t, c)
	require.Equal(t, contract.StageOffered, got.Stage)
	require.Equal(t, offered.ID, got.Offered.ID)
	require.Equal(t, offered.IsOfferParty, got.Offered.IsOfferParty)
	require.Equal(t, offered.TotalCollateral, got.Offered.TotalCollateral)
	require.Equal(t, offered.CetLockTime, got.Offered.CetLockTime)
	require.Equal(t, offered.RefundLockTime, got.Offered.RefundLockTime)
	require.Len(t, got.Offered.ContractInfo, 1)
	require.Equal(t, offered.ContractInfo[0].Announcements[0].EventID,
		got.Offered.ContractInfo[0].Announcements[0].EventID)
	require.True(t, offered.OfferParams.FundingPubKey.IsEqual(got.Offered.OfferParams.FundingPubKey))
}

func TestEncodeDecodeRejectedContract(t *testing.T) {
	offered := sampleOffered(t, 2)
	c := &contract.Contract{Stage: contract.StageRejected, Offered: offered}

	got := roundTrip(t, c)
	require.Equal(t, contract.StageRejected, got.Stage)
	require.Equal(t, offered.ID, got.Offered.ID)
}

func TestEncodeDecodeAcceptedContract(t *testing.T) {
	accepted := sampleAccepted(t, 3)
	accepted.DlcTransactions.Fund = sampleFundTx()
	accepted.AdaptorInfos = []*contract.AdaptorInfo{contract.NewAdaptorInfo([][]byte{{0}, {1}})}

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	encSig, err := adaptor.Sign(priv, priv.PubKey(), bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	accepted.AdaptorSignatures = [][]adaptor.Signature{{*encSig}}

	c := &contract.Contract{Stage: contract.StageAccepted, Accepted: accepted}
	got := roundTrip(t, c)

	require.Equal(t, contract.StageAccepted, got.Stage)
	require.Equal(t, accepted.ContractID, got.Accepted.ContractID)
	require.Equal(t, accepted.DlcTransactions.Fund.TxHash(), got.Accepted.DlcTransactions.Fund.TxHash())
	require.Len(t, got.Accepted.AdaptorInfos, 1)
	require.Equal(t, 2, got.Accepted.AdaptorInfos[0].Len())
	require.Len(t, got.Accepted.AdaptorSignatures, 1)
	require.Len(t, got.Accepted.AdaptorSignatures[0], 1)
	require.Equal(t, encSig.Serialize(), got.Accepted.AdaptorSignatures[0][0].Serialize())
}

func TestEncodeDecodeSignedAndConfirmedAndRefunded(t *testing.T) {
	accepted := sampleAccepted(t, 4)
	signed := &contract.SignedContract{
		AcceptedContract: *accepted,
		RefundSignature:  sampleRefundSignature(t),
		FundingSignatures: []wire.TxWitness{
			{[]byte{0x01}, []byte{0x02}},
		},
	}

	for _, stage := range []contract.Stage{
		contract.StageSigned, contract.StageConfirmed, contract.StageRefunded,
	} {
		c := &contract.Contract{Stage: stage, Signed: signed}
		got := roundTrip(t, c)
		require.Equal(t, stage, got.Stage)
		require.Equal(t, accepted.ContractID, got.GetID())
		require.Len(t, got.Signed.FundingSignatures, 1)
		require.Equal(t, signed.FundingSignatures[0], got.Signed.FundingSignatures[0])
	}
}

func TestEncodeDecodePreClosedContract(t *testing.T) {
	accepted := sampleAccepted(t, 5)
	signed := contract.SignedContract{
		AcceptedContract: *accepted,
		RefundSignature:  sampleRefundSignature(t),
	}
	cet := sampleFundTx()
	preClosed := &contract.PreClosedContract{
		SignedContract: signed,
		Attestations: []contract.OracleAttestation{{
			PublicKey:  [32]byte{9},
			EventID:    "rust-vs-go",
			Outcomes:   []string{"rust"},
			Signatures: [][64]byte{{1}},
		}},
		SignedCet: cet,
	}
	c := &contract.Contract{Stage: contract.StagePreClosed, PreClosed: preClosed}

	got := roundTrip(t, c)
	require.Equal(t, contract.StagePreClosed, got.Stage)
	require.Len(t, got.PreClosed.Attestations, 1)
	require.Equal(t, "rust-vs-go", got.PreClosed.Attestations[0].EventID)
	require.Equal(t, cet.TxHash(), got.PreClosed.SignedCet.TxHash())
}

func TestEncodeDecodeClosedContract(t *testing.T) {
	cet := sampleFundTx()
	closed := &contract.ClosedContract{
		Attestations: []contract.OracleAttestation{{
			PublicKey: [32]byte{9},
			EventID:   "rust-vs-go",
			Outcomes:  []string{"rust"},
		}},
		SignedCet:           cet,
		ContractID:          contract.ID{5},
		TemporaryContractID: contract.ID{6},
		CounterPartyID:      [33]byte{7},
		FundingTxid:         cet.TxHash(),
		PnLSats:             -1234,
	}
	c := &contract.Contract{Stage: contract.StageClosed, Closed: closed}

	got := roundTrip(t, c)
	require.Equal(t, contract.StageClosed, got.Stage)
	require.Equal(t, closed.ContractID, got.Closed.ContractID)
	require.Equal(t, closed.TemporaryContractID, got.Closed.TemporaryContractID)
	require.Equal(t, closed.CounterPartyID, got.Closed.CounterPartyID)
	require.Equal(t, closed.FundingTxid, got.Closed.FundingTxid)
	require.Equal(t, closed.PnLSats, got.Closed.PnLSats)
}

func TestEncodeDecodeFailedAcceptContract(t *testing.T) {
	offered := sampleOffered(t, 7)
	failed := &contract.FailedAcceptContract{
		OfferedContract: *offered,
		ErrorMessage:    "counterparty signature invalid",
	}
	c := &contract.Contract{Stage: contract.StageFailedAccept, FailedAccept: failed}

	got := roundTrip(t, c)
	require.Equal(t, contract.StageFailedAccept, got.Stage)
	require.Equal(t, offered.ID, got.FailedAccept.OfferedContract.ID)
	require.Equal(t, "counterparty signature invalid", got.FailedAccept.ErrorMessage)
}

func TestEncodeDecodeFailedSignContract(t *testing.T) {
	accepted := sampleAccepted(t, 8)
	failed := &contract.FailedSignContract{
		AcceptedContract: *accepted,
		ErrorMessage:     "refund signature invalid",
	}
	c := &contract.Contract{Stage: contract.StageFailedSign, FailedSign: failed}

	got := roundTrip(t, c)
	require.Equal(t, contract.StageFailedSign, got.Stage)
	require.Equal(t, accepted.ContractID, got.FailedSign.AcceptedContract.ContractID)
	require.Equal(t, "refund signature invalid", got.FailedSign.ErrorMessage)
}
