package dlcmanager_test

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcmanager"
	"github.com/btcdlc/dlcd/dlcstore"
	"github.com/btcdlc/dlcd/dlctest"
	"github.com/btcdlc/dlcd/dlcwire"
	"github.com/btcdlc/dlcd/external"
)

const (
	offerCollateral = 100000
	totalCollateral = 200000
	cetLockTime     = 600000
	refundLockTime  = 700000
)

// fixture wires a full offerer/acceptor pair of managers sharing one
// Blockchain and Time double, the way two independent processes would
// share nothing but the chain they both watch.
type fixture struct {
	t *testing.T

	chain *dlctest.Blockchain
	clock *dlctest.Time

	offererStore  *dlcstore.MemStore
	acceptorStore *dlcstore.MemStore

	offerer  *dlcmanager.Manager
	acceptor *dlcmanager.Manager

	h *dlctest.Handshake
}

func newFixture(t *testing.T, oracle *dlctest.Oracle, nonceX [32]byte) *fixture {
	t.Helper()

	ci := dlctest.EnumContractInfo(oracle, nonceX, totalCollateral)
	h := dlctest.BuildThroughAccept(t, ci, offerCollateral, totalCollateral, cetLockTime, refundLockTime)

	f := &fixture{
		t:             t,
		chain:         dlctest.NewBlockchain(),
		clock:         dlctest.NewTime(500000),
		offererStore:  dlcstore.NewMemStore(),
		acceptorStore: dlcstore.NewMemStore(),
		h:             h,
	}

	oracles := map[[32]byte]external.Oracle{oracle.PublicKey(): &dlctest.FeedOracle{Ann: &ci.Announcements[0]}}

	f.offerer = dlcmanager.New(dlcmanager.Config{
		Wallet:            h.OfferWallet,
		SignerProvider:    h.OfferSigners,
		Blockchain:        f.chain,
		Storage:           f.offererStore,
		Time:              f.clock,
		Oracles:           oracles,
		ConfirmationDepth: 3,
	})
	f.acceptor = dlcmanager.New(dlcmanager.Config{
		Wallet:            h.AcceptWallet,
		SignerProvider:    h.AcceptSigners,
		Blockchain:        f.chain,
		Storage:           f.acceptorStore,
		Time:              f.clock,
		Oracles:           oracles,
		ConfirmationDepth: 3,
	})

	ctx := context.Background()
	require.NoError(t, f.offererStore.CreateContract(ctx, h.Offered))

	return f
}

// driveToSigned processes the Offer, Accept, and Sign messages through
// both managers, leaving both sides' storage holding a StageSigned
// contract and the funding transaction broadcast on the shared chain.
func (f *fixture) driveToSigned(t *testing.T) *dlcwire.Sign {
	t.Helper()
	ctx := context.Background()

	_, err := f.acceptor.OnDlcMessage(ctx, f.h.OfferMsg, f.h.OfferPartyID)
	require.NoError(t, err)

	acceptedC := &contract.Contract{Stage: contract.StageAccepted, Accepted: f.h.Accepted}
	require.NoError(t, f.acceptorStore.UpdateContract(ctx, acceptedC, &f.h.Offered.ID))

	reply, err := f.offerer.OnDlcMessage(ctx, f.h.AcceptMsg, f.h.AcceptPartyID)
	require.NoError(t, err)
	require.NotNil(t, reply)
	signMsg, ok := reply.(*dlcwire.Sign)
	require.True(t, ok)

	_, err = f.acceptor.OnDlcMessage(ctx, signMsg, f.h.OfferPartyID)
	require.NoError(t, err)

	return signMsg
}

func TestOnDlcMessageFullHandshakeReachesSigned(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)

	f.driveToSigned(t)

	offererC, err := f.offererStore.GetContract(context.Background(), f.h.Accepted.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract.StageSigned, offererC.Stage)

	acceptorC, err := f.acceptorStore.GetContract(context.Background(), f.h.Accepted.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract.StageSigned, acceptorC.Stage)

	require.Len(t, f.chain.Sent, 1, "the funding transaction should have been broadcast exactly once")
}

func TestOnDlcMessageOfferRejectsDuplicateID(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	_, err := f.acceptor.OnDlcMessage(ctx, f.h.OfferMsg, f.h.OfferPartyID)
	require.NoError(t, err)

	_, err = f.acceptor.OnDlcMessage(ctx, f.h.OfferMsg, f.h.OfferPartyID)
	require.Error(t, err)
}

func TestOnDlcMessageTamperedAcceptSignatureFailsAccept(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	_, err := f.acceptor.OnDlcMessage(ctx, f.h.OfferMsg, f.h.OfferPartyID)
	require.NoError(t, err)

	// Swap in an unrelated pubkey so the previously-valid refund and
	// adaptor signatures no longer verify against the declared signer.
	bogusPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	tampered := *f.h.AcceptMsg
	tampered.FundingPubKey = bogusPriv.PubKey()

	_, err = f.offerer.OnDlcMessage(ctx, &tampered, f.h.AcceptPartyID)
	require.Error(t, err)

	offererC, err := f.offererStore.GetContract(ctx, f.h.Offered.ID)
	require.NoError(t, err)
	require.Equal(t, contract.StageFailedAccept, offererC.Stage)
}

func TestOnDlcMessageUnknownAcceptIsRejected(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	_, err := f.offerer.OnDlcMessage(ctx, f.h.AcceptMsg, f.h.AcceptPartyID)
	require.Error(t, err)
}

func TestPeriodicCheckAdvancesToConfirmed(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	f.driveToSigned(t)

	offererC, err := f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	fundTxid, ok := offererC.GetFundingTxid()
	require.True(t, ok)
	f.chain.SetConfirmations(fundTxid, 3)

	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	offererC, err = f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract.StageConfirmed, offererC.Stage)
}

func TestPeriodicCheckClosesOnWinningAttestation(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, k := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	f.driveToSigned(t)

	offererC, err := f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	fundTxid, _ := offererC.GetFundingTxid()
	f.chain.SetConfirmations(fundTxid, 3)
	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	sig := oracle.Sign(t, k, dlctest.EnumOutcomeMessage("go"))
	att := &contract.OracleAttestation{
		PublicKey:  oracle.PublicKey(),
		EventID:    "rust-vs-go",
		Outcomes:   []string{"go"},
		Signatures: [][64]byte{sig},
	}
	f.offerer = dlcmanager.New(dlcmanager.Config{
		Wallet:         f.h.OfferWallet,
		SignerProvider: f.h.OfferSigners,
		Blockchain:     f.chain,
		Storage:        f.offererStore,
		Time:           f.clock,
		Oracles: map[[32]byte]external.Oracle{
			oracle.PublicKey(): &dlctest.FeedOracle{Ann: &offererC.Signed.AcceptedContract.OfferedContract.ContractInfo[0].Announcements[0], Att: att},
		},
		ConfirmationDepth: 3,
	})

	f.clock.Advance(200000) // past cetLockTime

	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	offererC, err = f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract.StagePreClosed, offererC.Stage)
	require.Len(t, f.chain.Sent, 2, "funding and cet should both have broadcast")

	cetTxid := offererC.PreClosed.SignedCet.TxHash()
	f.chain.SetConfirmations(cetTxid, 3)

	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	offererC, err = f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract.StageClosed, offererC.Stage)
	// "go" pays the acceptor in full: the offerer's own payout is zero
	// against its 100000 sat collateral.
	require.Equal(t, int64(-offerCollateral), offererC.Closed.PnLSats)
}

func TestPeriodicCheckRefundsPastLocktimeWithNoAttestation(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	f.driveToSigned(t)

	offererC, err := f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	fundTxid, _ := offererC.GetFundingTxid()
	f.chain.SetConfirmations(fundTxid, 3)
	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	f.offerer = dlcmanager.New(dlcmanager.Config{
		Wallet:         f.h.OfferWallet,
		SignerProvider: f.h.OfferSigners,
		Blockchain:     f.chain,
		Storage:        f.offererStore,
		Time:           f.clock,
		Oracles: map[[32]byte]external.Oracle{
			oracle.PublicKey(): &dlctest.FeedOracle{Fail: true, Ann: &contract.OracleAnnouncement{PublicKey: oracle.PublicKey()}},
		},
		ConfirmationDepth: 3,
	})

	f.clock.Advance(300000) // past refundLockTime (700000)

	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	offererC, err = f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract.StageRefunded, offererC.Stage)
}

func TestCloseConfirmedContractRejectsBeforeMaturity(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	f.driveToSigned(t)
	offererC, err := f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	fundTxid, _ := offererC.GetFundingTxid()
	f.chain.SetConfirmations(fundTxid, 3)
	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	err = f.offerer.CloseConfirmedContract(ctx, f.h.Accepted.ContractID, nil)
	require.Error(t, err)
}

func TestOnCounterpartyCloseClassifiesRefund(t *testing.T) {
	oracle := dlctest.NewOracle(t)
	nonceX, _ := oracle.Announce(t)
	f := newFixture(t, oracle, nonceX)
	ctx := context.Background()

	f.driveToSigned(t)
	offererC, err := f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	fundTxid, _ := offererC.GetFundingTxid()
	f.chain.SetConfirmations(fundTxid, 3)
	require.NoError(t, f.offerer.PeriodicCheck(ctx))

	offererC, err = f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)

	refundTx := offererC.Signed.AcceptedContract.DlcTransactions.Refund

	err = f.offerer.OnCounterpartyClose(ctx, offererC.Signed, refundTx, 0)
	require.NoError(t, err)

	offererC, err = f.offererStore.GetContract(ctx, f.h.Accepted.ContractID)
	require.NoError(t, err)
	require.Equal(t, contract.StageRefunded, offererC.Stage)
}
