package txbuilder

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/dlcerr"
)

// FundingInput is one UTXO a party contributes to the funding transaction.
// Mirrors the wire Offer/Accept "funding_inputs" field of spec §6 and the
// per-input serial id used for deterministic ordering (spec §3).
type FundingInput struct {
	Outpoint      wire.OutPoint
	PrevTxOut     *wire.TxOut
	MaxWitnessLen int
	RedeemScript  []byte
	SerialID      uint64
}

// weight estimates the vbyte contribution of this input once signed.
func (f FundingInput) weight() int64 {
	return FundingInputWeight(f.MaxWitnessLen)
}

// DlcInput is the funding output of a previously confirmed DLC, spent
// directly as an input of a new (splicing) funding transaction. Spec §3,
// §4.A "Splicing variant".
type DlcInput struct {
	Outpoint         wire.OutPoint
	Value            btcutil.Amount
	LocalFundPubKey  *btcec.PublicKey
	RemoteFundPubKey *btcec.PublicKey
	ContractID       [32]byte
	SerialID         uint64
}

// redeemScript is the 2-of-2 redeem script of the prior DLC's funding
// output, needed to spend it.
func (d DlcInput) redeemScript() ([]byte, error) {
	return GenMultiSigScript(d.LocalFundPubKey, d.RemoteFundPubKey)
}

// PartyParams holds one party's contribution to a DLC, per spec §3 "Party
// Parameters".
type PartyParams struct {
	FundingPubKey    *btcec.PublicKey
	ChangeScript     []byte
	PayoutScript     []byte
	ChangeSerialID   uint64
	PayoutSerialID   uint64
	FundingInputs    []FundingInput
	DlcInputs        []DlcInput
	CollateralAmount btcutil.Amount
	InputAmount      btcutil.Amount
}

// TotalFundingInputAmount sums the value of all non-DLC funding inputs.
func (p PartyParams) TotalFundingInputAmount() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range p.FundingInputs {
		if in.PrevTxOut != nil {
			total += btcutil.Amount(in.PrevTxOut.Value)
		}
	}
	return total
}

// TotalDlcInputAmount sums the value of all DLC (splice) inputs.
func (p PartyParams) TotalDlcInputAmount() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range p.DlcInputs {
		total += in.Value
	}
	return total
}

// Validate enforces the spec §3 party-params invariant: the sum of all
// contributed inputs (regular funding UTXOs plus spliced DLC inputs) must
// cover the collateral this party is putting up.
//
// Validate only checks the input/collateral relationship in isolation;
// it does not check that the inputs also cover fees, and neither does
// Build.
func (p PartyParams) Validate() error {
	total := p.TotalFundingInputAmount() + p.TotalDlcInputAmount()
	if total < p.CollateralAmount {
		return dlcerr.New(dlcerr.InvalidParameters,
			"party contributes %d sats but collateral is %d",
			total, p.CollateralAmount)
	}
	return nil
}

// PayoutEntry is one row of a contract's payout table: the split of total
// collateral between offerer and acceptor for one outcome. Spec §3
// "Contract Info".
type PayoutEntry struct {
	OfferSats  btcutil.Amount
	AcceptSats btcutil.Amount
}

// DlcTransactions is the fully-built (but not yet signed) transaction set
// for a contract: the funding transaction, one CET per payout entry, and
// the refund transaction. Spec §3 "DLC Transactions".
type DlcTransactions struct {
	Fund                *wire.MsgTx
	Cets                []*wire.MsgTx
	Refund              *wire.MsgTx
	FundingRedeemScript []byte
	FundingScriptPubKey []byte
	FundOutputIndex     int
}
