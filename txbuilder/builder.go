// Package txbuilder deterministically constructs the funding, CET, refund,
// and splice-funding transactions for a DLC, per spec §4.A. Two honest
// parties given identical inputs always produce byte-identical
// transactions, because every input and output is placed according to its
// serial id rather than construction order.
package txbuilder

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/dlcerr"
)

// dustLimit is the minimal standard P2WSH/P2WPKH output value below which
// an output is dropped rather than created, per spec §4.A "omitting dust".
const dustLimit = btcutil.Amount(1000)

// cetSequence / refundSequence are both 0xFFFFFFFE, one below the final
// sequence, so consensus enforces each transaction's nLockTime
// (cet_locktime for CETs, refund_locktime for the refund).
const (
	cetSequence    = wire.MaxTxInSequenceNum - 1
	refundSequence = wire.MaxTxInSequenceNum - 1
)

// serialInput pairs a transaction input with its serial id for sorting.
type serialInput struct {
	serialID uint64
	txIn     *wire.TxIn
	witness  wire.TxWitness
}

// serialOutput pairs a transaction output with its serial id for sorting.
type serialOutput struct {
	serialID uint64
	txOut    *wire.TxOut
}

func sortBySerial[T any](items []T, serialOf func(T) uint64) {
	sort.SliceStable(items, func(i, j int) bool {
		return serialOf(items[i]) < serialOf(items[j])
	})
}

// BuildParams bundles all inputs to Build, spec §4.A.
type BuildParams struct {
	Offer              *PartyParams
	Accept             *PartyParams
	Payouts            []PayoutEntry
	RefundLockTime     uint32
	CetLockTime        uint32
	FeeRatePerVByte    int64
	FundOutputSerialID uint64
}

// Build constructs the funding transaction, the ordered CET set, and the
// refund transaction for a contract. It is a pure function of its inputs:
// given the same BuildParams, it always returns byte-identical
// transactions (spec §8 "Serial-id determinism").
func Build(p BuildParams) (*DlcTransactions, error) {
	if len(p.Payouts) == 0 {
		return nil, dlcerr.New(dlcerr.InvalidParameters, "contract must have at least one payout outcome")
	}

	totalCollateral := p.Offer.CollateralAmount + p.Accept.CollateralAmount

	redeemScript, fundTxOut, err := FundingOutputScript(
		p.Offer.FundingPubKey, p.Accept.FundingPubKey, int64(totalCollateral),
	)
	if err != nil {
		return nil, err
	}

	fundTx, fundOutputIndex, err := buildFundingTx(p, fundTxOut)
	if err != nil {
		return nil, err
	}
	fundOutpoint := wire.OutPoint{
		Hash:  fundTx.TxHash(),
		Index: uint32(fundOutputIndex),
	}

	cets := make([]*wire.MsgTx, 0, len(p.Payouts))
	for _, payout := range p.Payouts {
		cet, err := buildCET(fundOutpoint, p, payout)
		if err != nil {
			return nil, err
		}
		cets = append(cets, cet)
	}

	refund, err := buildRefundTx(fundOutpoint, p)
	if err != nil {
		return nil, err
	}

	return &DlcTransactions{
		Fund:                fundTx,
		Cets:                cets,
		Refund:              refund,
		FundingRedeemScript: redeemScript,
		FundingScriptPubKey: fundTxOut.PkScript,
		FundOutputIndex:     fundOutputIndex,
	}, nil
}

// BuildCETs constructs a CET set for payouts against an already-built
// funding outpoint, reusing p's party scripts/serial ids and locktime.
// Used to add the CET sets of additional contract-infos in a multi-event
// contract to the transactions Build already produced, since every
// contract-info's CETs spend the same funding output (spec §4.A, §4.C
// "a contract may carry more than one contract-info").
func BuildCETs(fundOutpoint wire.OutPoint, p BuildParams, payouts []PayoutEntry) ([]*wire.MsgTx, error) {
	cets := make([]*wire.MsgTx, 0, len(payouts))
	for _, payout := range payouts {
		cet, err := buildCET(fundOutpoint, p, payout)
		if err != nil {
			return nil, err
		}
		cets = append(cets, cet)
	}
	return cets, nil
}

// buildFundingTx assembles the funding transaction: all offer+accept
// funding inputs (plus any DLC splice inputs) ordered by serial id, the
// 2-of-2 funding output plus each party's change output (again ordered by
// serial id), omitting change outputs that would be dust.
func buildFundingTx(p BuildParams, fundTxOut *wire.TxOut) (*wire.MsgTx, int, error) {
	tx := wire.NewMsgTx(2)

	var inputs []serialInput
	addInputs := func(pp *PartyParams) error {
		for _, fi := range pp.FundingInputs {
			inputs = append(inputs, serialInput{
				serialID: fi.SerialID,
				txIn:     wire.NewTxIn(&fi.Outpoint, nil, nil),
			})
		}
		for _, di := range pp.DlcInputs {
			redeem, err := di.redeemScript()
			if err != nil {
				return dlcerr.Wrap(dlcerr.InvalidParameters, err,
					"unable to build redeem script for spliced dlc input")
			}
			in := wire.NewTxIn(&di.Outpoint, nil, nil)
			in.Sequence = cetSequence
			inputs = append(inputs, serialInput{
				serialID: di.SerialID,
				txIn:     in,
				witness:  wire.TxWitness{nil, nil, nil, redeem},
			})
		}
		return nil
	}
	if err := addInputs(p.Offer); err != nil {
		return nil, 0, err
	}
	if err := addInputs(p.Accept); err != nil {
		return nil, 0, err
	}
	sortBySerial(inputs, func(i serialInput) uint64 { return i.serialID })
	for _, in := range inputs {
		tx.AddTxIn(in.txIn)
	}

	outputs := []serialOutput{{serialID: p.FundOutputSerialID, txOut: fundTxOut}}
	outputs = appendChangeOutput(outputs, p.Offer)
	outputs = appendChangeOutput(outputs, p.Accept)
	sortBySerial(outputs, func(o serialOutput) uint64 { return o.serialID })
	for _, out := range outputs {
		tx.AddTxOut(out.txOut)
	}

	return tx, fundOutputPosition(outputs, fundTxOut), nil
}

// appendChangeOutput adds a party's change output to the set unless the
// party's contribution to the funding tx doesn't leave enough over to clear
// the dust limit, in which case the change is simply omitted (spec §4.A).
func appendChangeOutput(outputs []serialOutput, pp *PartyParams) []serialOutput {
	contributed := pp.TotalFundingInputAmount() + pp.TotalDlcInputAmount()
	change := contributed - pp.CollateralAmount
	if change <= dustLimit {
		return outputs
	}
	return append(outputs, serialOutput{
		serialID: pp.ChangeSerialID,
		txOut:    wire.NewTxOut(int64(change), pp.ChangeScript),
	})
}

func fundOutputPosition(outputs []serialOutput, fundTxOut *wire.TxOut) int {
	for i, o := range outputs {
		if o.txOut == fundTxOut {
			return i
		}
	}
	return -1
}

// buildCET assembles a single CET: one input spending the funding outpoint
// with nSequence=0xFFFFFFFE and nLockTime=cet_locktime, and up to two
// outputs (dust-trimmed) ordered by serial id. Spec §4.A "CET construction".
func buildCET(fundOutpoint wire.OutPoint, p BuildParams, payout PayoutEntry) (*wire.MsgTx, error) {
	total := p.Offer.CollateralAmount + p.Accept.CollateralAmount
	if payout.OfferSats+payout.AcceptSats != total {
		return nil, dlcerr.New(dlcerr.InvalidParameters,
			"payout entry (%d, %d) doesn't sum to total collateral %d",
			payout.OfferSats, payout.AcceptSats, total)
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = p.CetLockTime

	txIn := wire.NewTxIn(&fundOutpoint, nil, nil)
	txIn.Sequence = cetSequence
	tx.AddTxIn(txIn)

	var outputs []serialOutput
	if payout.OfferSats > dustLimit {
		outputs = append(outputs, serialOutput{
			serialID: p.Offer.PayoutSerialID,
			txOut:    wire.NewTxOut(int64(payout.OfferSats), p.Offer.PayoutScript),
		})
	}
	if payout.AcceptSats > dustLimit {
		outputs = append(outputs, serialOutput{
			serialID: p.Accept.PayoutSerialID,
			txOut:    wire.NewTxOut(int64(payout.AcceptSats), p.Accept.PayoutScript),
		})
	}
	sortBySerial(outputs, func(o serialOutput) uint64 { return o.serialID })
	for _, out := range outputs {
		tx.AddTxOut(out.txOut)
	}

	return tx, nil
}

// buildRefundTx assembles the refund transaction: one input spending the
// funding outpoint, nLockTime=refund_locktime, and two outputs paying each
// party their collateral minus half the refund fee. Spec §4.A
// "Refund construction".
func buildRefundTx(fundOutpoint wire.OutPoint, p BuildParams) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)
	tx.LockTime = p.RefundLockTime

	txIn := wire.NewTxIn(&fundOutpoint, nil, nil)
	txIn.Sequence = refundSequence
	tx.AddTxIn(txIn)

	refundFee := FundingFeeReserve(
		p.FeeRatePerVByte, len(p.Offer.PayoutScript), len(p.Accept.PayoutScript),
	)
	halfFee := btcutil.Amount(refundFee / 2)

	var outputs []serialOutput
	offerAmt := p.Offer.CollateralAmount - halfFee
	acceptAmt := p.Accept.CollateralAmount - halfFee
	outputs = append(outputs, serialOutput{
		serialID: p.Offer.PayoutSerialID,
		txOut:    wire.NewTxOut(int64(offerAmt), p.Offer.PayoutScript),
	})
	outputs = append(outputs, serialOutput{
		serialID: p.Accept.PayoutSerialID,
		txOut:    wire.NewTxOut(int64(acceptAmt), p.Accept.PayoutScript),
	})
	sortBySerial(outputs, func(o serialOutput) uint64 { return o.serialID })
	for _, out := range outputs {
		tx.AddTxOut(out.txOut)
	}

	return tx, nil
}

// SigHash computes the BIP-143 witness program sighash for spending the
// funding output at index inputIdx of tx, used for both adaptor-signature
// generation and verification.
func SigHash(tx *wire.MsgTx, inputIdx int, redeemScript []byte, amt btcutil.Amount) ([]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(nil, 0)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	return txscript.CalcWitnessSigHash(
		redeemScript, sigHashes, txscript.SigHashAll, tx, inputIdx, int64(amt),
	)
}
