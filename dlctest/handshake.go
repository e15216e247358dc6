package dlctest

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/contractupdater"
	"github.com/btcdlc/dlcd/dlcwire"
)

// Handshake bundles the two parties' wallets, signers, and the Offer and
// Accept wire messages, so dlcmanager's tests can feed the same messages
// through Manager.OnDlcMessage instead of re-deriving them.
// BuildThroughAccept leaves SignMsg nil.
type Handshake struct {
	OfferWallet, AcceptWallet   *Wallet
	OfferSigners, AcceptSigners *SignerProvider

	Offered  *contract.OfferedContract
	Accepted *contract.AcceptedContract

	OfferMsg  *dlcwire.Offer
	AcceptMsg *dlcwire.Accept
	SignMsg   *dlcwire.Sign

	OfferPartyID, AcceptPartyID [33]byte
}

// BuildThroughAccept runs Offer and Accept (but not Sign), leaving the
// caller free to drive Manager.OnDlcMessage with OfferMsg and then
// AcceptMsg directly.
func BuildThroughAccept(t *testing.T, ci contract.ContractInfo, offerCollateral,
	totalCollateral int64, cetLockTime, refundLockTime uint32) *Handshake {

	t.Helper()
	ctx := context.Background()

	h := &Handshake{
		OfferWallet:   NewWallet(t, 1),
		AcceptWallet:  NewWallet(t, 2),
		OfferSigners:  NewSignerProvider(t),
		AcceptSigners: NewSignerProvider(t),
		OfferPartyID:  [33]byte{1},
		AcceptPartyID: [33]byte{2},
	}

	in := contractupdater.OfferInput{
		ContractInfo:    []contract.ContractInfo{ci},
		OfferCollateral: btcutil.Amount(offerCollateral),
		TotalCollateral: btcutil.Amount(totalCollateral),
		FeeRatePerVByte: 1,
		CetLockTime:     cetLockTime,
		RefundLockTime:  refundLockTime,
		CounterParty:    h.AcceptPartyID,
		ChainHash:       chainhash.Hash{1},
	}

	offered, offerMsg, err := contractupdater.OfferContract(ctx, h.OfferWallet, h.OfferSigners, in)
	require.NoError(t, err)
	h.Offered = offered
	h.OfferMsg = offerMsg

	offeredOnAccept, err := contractupdater.OfferedContractFromWire(offerMsg, h.OfferPartyID)
	require.NoError(t, err)

	accepted, acceptMsg, err := contractupdater.AcceptContract(ctx, offeredOnAccept, h.AcceptWallet, h.AcceptSigners)
	require.NoError(t, err)
	h.Accepted = accepted
	h.AcceptMsg = acceptMsg

	return h
}
