package dlcstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
)

func openTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contracts.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestBoltStoreCreateAndGet(t *testing.T) {
	s := openTestBoltStore(t)
	ctx := context.Background()
	offered := sampleOffered(t, 1)

	require.NoError(t, s.CreateContract(ctx, offered))

	got, err := s.GetContract(ctx, offered.ID)
	require.NoError(t, err)
	require.Equal(t, contract.StageOffered, got.Stage)
	require.Equal(t, offered.ID, got.GetID())
}

func TestBoltStoreCreateDuplicateRejected(t *testing.T) {
	s := openTestBoltStore(t)
	ctx := context.Background()
	offered := sampleOffered(t, 2)

	require.NoError(t, s.CreateContract(ctx, offered))
	err := s.CreateContract(ctx, offered)
	require.Error(t, err)
	kind, ok := dlcerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, dlcerr.InvalidState, kind)
}

func TestBoltStoreGetMissingReturnsNotFound(t *testing.T) {
	s := openTestBoltStore(t)
	_, err := s.GetContract(context.Background(), contract.ID{0xab})
	require.Error(t, err)
	kind, ok := dlcerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, dlcerr.NotFound, kind)
}

func TestBoltStoreUpdatePromotesTemporaryToFinalID(t *testing.T) {
	s := openTestBoltStore(t)
	ctx := context.Background()
	offered := sampleOffered(t, 3)
	require.NoError(t, s.CreateContract(ctx, offered))

	accepted := sampleAccepted(t, 3)
	c := &contract.Contract{Stage: contract.StageAccepted, Accepted: accepted}
	finalID := accepted.GetContractID()

	require.NoError(t, s.UpdateContract(ctx, c, &offered.ID))

	_, err := s.GetContract(ctx, offered.ID)
	require.Error(t, err)

	got, err := s.GetContract(ctx, finalID)
	require.NoError(t, err)
	require.Equal(t, contract.StageAccepted, got.Stage)
	require.Equal(t, finalID, got.GetID())
}

func TestBoltStoreDeleteContract(t *testing.T) {
	s := openTestBoltStore(t)
	ctx := context.Background()
	offered := sampleOffered(t, 4)
	require.NoError(t, s.CreateContract(ctx, offered))

	require.NoError(t, s.DeleteContract(ctx, offered.ID))

	_, err := s.GetContract(ctx, offered.ID)
	require.Error(t, err)
}

func TestBoltStoreStageFilteredAccessors(t *testing.T) {
	s := openTestBoltStore(t)
	ctx := context.Background()

	offer1 := sampleOffered(t, 10)
	offer2 := sampleOffered(t, 11)
	require.NoError(t, s.CreateContract(ctx, offer1))
	require.NoError(t, s.CreateContract(ctx, offer2))

	signed := sampleAccepted(t, 12)
	signedContract := &contract.Contract{
		Stage: contract.StageSigned,
		Signed: &contract.SignedContract{
			AcceptedContract: *signed,
			RefundSignature:  sampleRefundSignature(t),
		},
	}
	require.NoError(t, s.UpdateContract(ctx, signedContract, nil))

	offers, err := s.GetContractOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 2)

	signedSet, err := s.GetSignedContracts(ctx)
	require.NoError(t, err)
	require.Len(t, signedSet, 1)

	confirmed, err := s.GetConfirmedContracts(ctx)
	require.NoError(t, err)
	require.Len(t, confirmed, 0)
}
