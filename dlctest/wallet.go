package dlctest

import (
	"context"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/txbuilder"
)

type utxoRecord struct {
	priv       *btcec.PrivateKey
	pkScript   []byte
	scriptCode []byte
}

// Wallet is a minimal in-memory external.Wallet: it hands out
// deterministic change/payout scripts and mints a fresh single-key UTXO
// on every funding request.
type Wallet struct {
	changeScript []byte
	payoutScript []byte
	utxoValue    btcutil.Amount
	nextIdx      byte
	utxos        map[wire.OutPoint]utxoRecord
}

// NewWallet returns a Wallet whose change/payout scripts are tagged with
// tag, so two wallets in the same test never collide.
func NewWallet(t *testing.T, tag byte) *Wallet {
	t.Helper()
	return &Wallet{
		changeScript: []byte{0x00, 0x14, tag, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18},
		payoutScript: []byte{0x00, 0x14, tag, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 34, 35, 36},
		utxoValue:    250000,
		utxos:        make(map[wire.OutPoint]utxoRecord),
	}
}

func (w *Wallet) NewAddress(ctx context.Context) ([]byte, error)       { return w.payoutScript, nil }
func (w *Wallet) NewChangeAddress(ctx context.Context) ([]byte, error) { return w.changeScript, nil }
func (w *Wallet) ImportAddress(ctx context.Context, script []byte) error { return nil }
func (w *Wallet) UnreserveUTXOs(ctx context.Context, outpoints []wire.OutPoint) error { return nil }

func (w *Wallet) UTXOsForAmount(ctx context.Context, amount btcutil.Amount, feeRatePerVByte int64,
	lock bool) ([]txbuilder.FundingInput, error) {

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	pubHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	pkScript := append([]byte{0x00, 0x14}, pubHash...)
	scriptCode, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddData(pubHash).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return nil, err
	}

	var hash chainhash.Hash
	hash[0] = w.nextIdx
	w.nextIdx++
	outpoint := wire.OutPoint{Hash: hash, Index: 0}

	w.utxos[outpoint] = utxoRecord{priv: priv, pkScript: pkScript, scriptCode: scriptCode}

	return []txbuilder.FundingInput{{
		Outpoint:      outpoint,
		PrevTxOut:     wire.NewTxOut(int64(w.utxoValue), pkScript),
		MaxWitnessLen: 108,
		SerialID:      uint64(outpoint.Hash[0]) + 1,
	}}, nil
}

func (w *Wallet) SignPSBTInput(ctx context.Context, p *psbt.Packet, index int) error {
	txIn := p.UnsignedTx.TxIn[index]
	rec, ok := w.utxos[txIn.PreviousOutPoint]
	if !ok {
		return fmt.Errorf("unknown utxo for signing")
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(nil, 0)
	sigHashes := txscript.NewTxSigHashes(p.UnsignedTx, fetcher)
	witness, err := txscript.WitnessSignature(p.UnsignedTx, sigHashes, index, int64(w.utxoValue),
		rec.scriptCode, txscript.SigHashAll, rec.priv, true)
	if err != nil {
		return err
	}

	p.Inputs[index].FinalScriptWitness = serializeWitness(witness)
	return nil
}

func serializeWitness(w wire.TxWitness) []byte {
	var buf []byte
	appendVarInt := func(n uint64) {
		// small values only, sufficient for a two-element p2wpkh witness.
		buf = append(buf, byte(n))
	}
	appendVarInt(uint64(len(w)))
	for _, elem := range w {
		appendVarInt(uint64(len(elem)))
		buf = append(buf, elem...)
	}
	return buf
}
