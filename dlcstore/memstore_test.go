package dlcstore

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/txbuilder"
)

func sampleContractInfo() contract.ContractInfo {
	return contract.ContractInfo{
		Announcements: []contract.OracleAnnouncement{{
			PublicKey: [32]byte{1},
			EventID:   "rust-vs-go",
			Descriptor: contract.EventDescriptor{
				Kind:     contract.EventEnum,
				Outcomes: []string{"rust", "go"},
			},
			Nonces: [][32]byte{{2}},
		}},
		Threshold:       1,
		TotalCollateral: 100000,
		Outcomes: []contract.Outcome{
			{Path: []byte{0}, Payout: txbuilder.PayoutEntry{OfferSats: 100000, AcceptSats: 0}},
			{Path: []byte{1}, Payout: txbuilder.PayoutEntry{OfferSats: 0, AcceptSats: 100000}},
		},
	}
}

func samplePartyParams(t *testing.T) txbuilder.PartyParams {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return txbuilder.PartyParams{
		FundingPubKey:    priv.PubKey(),
		ChangeScript:     []byte{0x00, 0x14},
		PayoutScript:     []byte{0x00, 0x14},
		ChangeSerialID:   1,
		PayoutSerialID:   2,
		CollateralAmount: 50000,
		InputAmount:      50100,
	}
}

func sampleOffered(t *testing.T, id byte) *contract.OfferedContract {
	t.Helper()
	return &contract.OfferedContract{
		ID:              contract.ID{id},
		IsOfferParty:    true,
		ContractInfo:    []contract.ContractInfo{sampleContractInfo()},
		TotalCollateral: 100000,
		OfferParams:     samplePartyParams(t),
		CetLockTime:     100,
		RefundLockTime:  200,
	}
}

func sampleRefundSignature(t *testing.T) ecdsa.Signature {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	hash := sha256.Sum256([]byte("refund"))
	return *ecdsa.Sign(priv, hash[:])
}

func sampleAccepted(t *testing.T, id byte) *contract.AcceptedContract {
	t.Helper()
	return &contract.AcceptedContract{
		OfferedContract:   *sampleOffered(t, id),
		AcceptParams:      samplePartyParams(t),
		AdaptorSignatures: [][]adaptor.Signature{},
		RefundSignature:   sampleRefundSignature(t),
		ContractID:        contract.ID{id, 0xff},
	}
}

func TestMemStoreCreateAndGet(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	offered := sampleOffered(t, 1)

	require.NoError(t, m.CreateContract(ctx, offered))

	got, err := m.GetContract(ctx, offered.ID)
	require.NoError(t, err)
	require.Equal(t, contract.StageOffered, got.Stage)
	require.Equal(t, offered.ID, got.GetID())
	require.True(t, got.IsOfferParty())
	require.Equal(t, uint32(100), got.GetCetLockTime())
	require.Equal(t, uint32(200), got.GetRefundLockTime())
}

func TestMemStoreCreateDuplicateRejected(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	offered := sampleOffered(t, 2)

	require.NoError(t, m.CreateContract(ctx, offered))
	err := m.CreateContract(ctx, offered)
	require.Error(t, err)
	kind, ok := dlcerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, dlcerr.InvalidState, kind)
}

func TestMemStoreGetMissingReturnsNotFound(t *testing.T) {
	m := NewMemStore()
	_, err := m.GetContract(context.Background(), contract.ID{0xab})
	require.Error(t, err)
	kind, ok := dlcerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, dlcerr.NotFound, kind)
}

func TestMemStoreUpdatePromotesTemporaryToFinalID(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	offered := sampleOffered(t, 3)
	require.NoError(t, m.CreateContract(ctx, offered))

	accepted := sampleAccepted(t, 3)
	c := &contract.Contract{Stage: contract.StageAccepted, Accepted: accepted}
	finalID := accepted.GetContractID()

	require.NoError(t, m.UpdateContract(ctx, c, &offered.ID))

	_, err := m.GetContract(ctx, offered.ID)
	require.Error(t, err)

	got, err := m.GetContract(ctx, finalID)
	require.NoError(t, err)
	require.Equal(t, contract.StageAccepted, got.Stage)
	require.Equal(t, finalID, got.GetID())
	require.Equal(t, offered.ID, got.GetTemporaryID())
}

func TestMemStoreDeleteContract(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	offered := sampleOffered(t, 4)
	require.NoError(t, m.CreateContract(ctx, offered))

	require.NoError(t, m.DeleteContract(ctx, offered.ID))

	_, err := m.GetContract(ctx, offered.ID)
	require.Error(t, err)
}

func TestMemStoreStageFilteredAccessors(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	offer1 := sampleOffered(t, 10)
	offer2 := sampleOffered(t, 11)
	require.NoError(t, m.CreateContract(ctx, offer1))
	require.NoError(t, m.CreateContract(ctx, offer2))

	signed := sampleAccepted(t, 12)
	signedContract := &contract.Contract{
		Stage: contract.StageSigned,
		Signed: &contract.SignedContract{
			AcceptedContract: *signed,
			RefundSignature:  sampleRefundSignature(t),
		},
	}
	require.NoError(t, m.UpdateContract(ctx, signedContract, nil))

	offers, err := m.GetContractOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 2)

	signedSet, err := m.GetSignedContracts(ctx)
	require.NoError(t, err)
	require.Len(t, signedSet, 1)
	require.Equal(t, signed.GetContractID(), signedSet[0].GetID())

	confirmed, err := m.GetConfirmedContracts(ctx)
	require.NoError(t, err)
	require.Len(t, confirmed, 0)

	preClosed, err := m.GetPreClosedContracts(ctx)
	require.NoError(t, err)
	require.Len(t, preClosed, 0)
}
