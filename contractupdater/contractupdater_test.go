package contractupdater

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/external"
	"github.com/btcdlc/dlcd/txbuilder"
)

// --- test oracle: manually constructs BIP340 signatures for a chosen
// nonce, so the attestation's revealed nonce matches the one recorded in
// the announcement, something the real schnorr.Sign API (which derives
// its own nonce) can't be made to do. ---

type testOracle struct {
	priv *secp256k1.PrivateKey
}

func newTestOracle(t *testing.T) *testOracle {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return &testOracle{priv: priv}
}

func (o *testOracle) pubKeyX() [32]byte {
	pub := o.priv.PubKey()
	var out [32]byte
	copy(out[:], pub.SerializeCompressed()[1:])
	return out
}

// announce picks a fresh nonce and returns its x-only encoding.
func (o *testOracle) announce(t *testing.T) (nonceX [32]byte, k *secp256k1.ModNScalar) {
	t.Helper()
	nPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	k = &nPriv.Key

	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &r)
	r.ToAffine()
	if r.Y.IsOdd() {
		k.Negate()
		secp256k1.ScalarBaseMultNonConst(k, &r)
		r.ToAffine()
	}
	xBytes := r.X.Bytes()
	copy(nonceX[:], xBytes[:])
	return nonceX, k
}

// sign produces a valid 64-byte BIP340 signature over msg using the
// previously announced nonce k, following the verification equation
// adaptor.OutcomePoint / contract.OracleAttestation.Validate expect.
func (o *testOracle) sign(t *testing.T, k *secp256k1.ModNScalar, msg [32]byte) [64]byte {
	t.Helper()

	d := o.priv.Key
	var pubJ secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&d, &pubJ)
	pubJ.ToAffine()
	if pubJ.Y.IsOdd() {
		d.Negate()
	}

	var rJ secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &rJ)
	rJ.ToAffine()
	rXBytes := rJ.X.Bytes()

	pubXBytes := o.pubKeyX()

	challenge := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, rXBytes[:], pubXBytes[:], msg[:])
	var e secp256k1.ModNScalar
	e.SetByteSlice(challenge[:])

	var s secp256k1.ModNScalar
	s.Set(&e)
	s.Mul(&d)
	s.Add(k)

	var out [64]byte
	copy(out[:32], rXBytes[:])
	sBytes := s.Bytes()
	copy(out[32:], sBytes[:])
	return out
}

func enumMsg(outcome string) [32]byte {
	return sha256.Sum256([]byte(outcome))
}

// --- test wallet/signer doubles ---

type utxoRecord struct {
	priv       *btcec.PrivateKey
	pkScript   []byte
	scriptCode []byte
}

type testWallet struct {
	changeScript []byte
	payoutScript []byte
	utxoValue    btcutil.Amount
	nextIdx      byte
	utxos        map[wire.OutPoint]utxoRecord
}

func newTestWallet(t *testing.T, tag byte) *testWallet {
	t.Helper()
	return &testWallet{
		changeScript: []byte{0x00, 0x14, tag, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18},
		payoutScript: []byte{0x00, 0x14, tag, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 34, 35, 36},
		utxoValue:    250000,
		utxos:        make(map[wire.OutPoint]utxoRecord),
	}
}

func (w *testWallet) NewAddress(ctx context.Context) ([]byte, error)       { return w.payoutScript, nil }
func (w *testWallet) NewChangeAddress(ctx context.Context) ([]byte, error) { return w.changeScript, nil }
func (w *testWallet) ImportAddress(ctx context.Context, script []byte) error { return nil }
func (w *testWallet) UnreserveUTXOs(ctx context.Context, outpoints []wire.OutPoint) error { return nil }

func (w *testWallet) UTXOsForAmount(ctx context.Context, amount btcutil.Amount, feeRatePerVByte int64,
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

func (w *testWallet) SignPSBTInput(ctx context.Context, p *psbt.Packet, index int) error {
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

type testSignerProvider struct {
	offerPriv, acceptPriv *btcec.PrivateKey
}

func newTestSignerProvider(t *testing.T) *testSignerProvider {
	t.Helper()
	offerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	acceptPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &testSignerProvider{offerPriv: offerPriv, acceptPriv: acceptPriv}
}

func (s *testSignerProvider) DeriveSignerKeyID(isOfferParty bool, temporaryID contract.ID) ([32]byte, error) {
	var id [32]byte
	if isOfferParty {
		id[0] = 1
	} else {
		id[0] = 2
	}
	return id, nil
}

func (s *testSignerProvider) DeriveContractSigner(keyID [32]byte) (*btcec.PrivateKey, *btcec.PublicKey, error) {
	if keyID[0] == 1 {
		return s.offerPriv, s.offerPriv.PubKey(), nil
	}
	return s.acceptPriv, s.acceptPriv.PubKey(), nil
}

type testStorage struct {
	contracts map[contract.ID]*contract.Contract
}

func newTestStorage() *testStorage {
	return &testStorage{contracts: make(map[contract.ID]*contract.Contract)}
}

func (s *testStorage) CreateContract(ctx context.Context, offered *contract.OfferedContract) error {
	return nil
}
func (s *testStorage) UpdateContract(ctx context.Context, c *contract.Contract, priorID *contract.ID) error {
	return nil
}
func (s *testStorage) DeleteContract(ctx context.Context, id contract.ID) error { return nil }
func (s *testStorage) GetContract(ctx context.Context, id contract.ID) (*contract.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %x not found", id)
	}
	return c, nil
}
func (s *testStorage) GetContractOffers(ctx context.Context) ([]*contract.Contract, error) { return nil, nil }
func (s *testStorage) GetSignedContracts(ctx context.Context) ([]*contract.Contract, error) { return nil, nil }
func (s *testStorage) GetConfirmedContracts(ctx context.Context) ([]*contract.Contract, error) { return nil, nil }
func (s *testStorage) GetPreClosedContracts(ctx context.Context) ([]*contract.Contract, error) { return nil, nil }

var _ external.Wallet = (*testWallet)(nil)
var _ external.ContractSignerProvider = (*testSignerProvider)(nil)
var _ external.Storage = (*testStorage)(nil)

func enumContractInfoWithOracle(t *testing.T, oracle *testOracle, nonceX [32]byte) contract.ContractInfo {
	return contract.ContractInfo{
		Announcements: []contract.OracleAnnouncement{{
			PublicKey: oracle.pubKeyX(),
			EventID:   "rust-vs-go",
			Descriptor: contract.EventDescriptor{
				Kind:     contract.EventEnum,
				Outcomes: []string{"rust", "go"},
			},
			Nonces: [][32]byte{nonceX},
		}},
		Threshold:       1,
		TotalCollateral: 200000,
		Outcomes: []contract.Outcome{
			{Path: []byte{0}, Payout: txbuilder.PayoutEntry{OfferSats: 200000, AcceptSats: 0}},
			{Path: []byte{1}, Payout: txbuilder.PayoutEntry{OfferSats: 0, AcceptSats: 200000}},
		},
	}
}

// runHandshake drives a full Offer -> Accept -> Sign handshake between two
// in-process parties, returning both sides' SignedContract along with the
// assembled, fully-signed funding transaction.
func runHandshake(t *testing.T, ci contract.ContractInfo) (offererSigned, accepterSigned *contract.SignedContract,
	fundTx *wire.MsgTx, offerSigner, acceptSigner *testSignerProvider) {

	t.Helper()
	ctx := context.Background()

	offerWallet := newTestWallet(t, 1)
	acceptWallet := newTestWallet(t, 2)
	offerSigners := newTestSignerProvider(t)
	acceptSigners := newTestSignerProvider(t)
	storage := newTestStorage()

	in := OfferInput{
		ContractInfo:    []contract.ContractInfo{ci},
		OfferCollateral: 100000,
		TotalCollateral: 200000,
		FeeRatePerVByte: 1,
		CetLockTime:     600000,
		RefundLockTime:  700000,
		CounterParty:    [33]byte{9},
		ChainHash:       chainhash.Hash{1},
	}

	offered, offerMsg, err := OfferContract(ctx, offerWallet, offerSigners, in)
	require.NoError(t, err)

	offeredOnAccept, err := OfferedContractFromWire(offerMsg, [33]byte{8})
	require.NoError(t, err)

	accepted, acceptMsg, err := AcceptContract(ctx, offeredOnAccept, acceptWallet, acceptSigners)
	require.NoError(t, err)

	offererSigned, signMsg, err := VerifyAcceptedAndSign(ctx, offered, acceptMsg, offerWallet, storage, offerSigners)
	require.NoError(t, err)

	accepterSigned, fundTx, err = VerifySigned(ctx, accepted, signMsg, acceptWallet, storage, acceptSigners)
	require.NoError(t, err)

	return offererSigned, accepterSigned, fundTx, offerSigners, acceptSigners
}

func TestHandshakeProducesIdenticalTransactions(t *testing.T) {
	oracle := newTestOracle(t)
	nonceX, _ := oracle.announce(t)
	ci := enumContractInfoWithOracle(t, oracle, nonceX)

	offererSigned, accepterSigned, fundTx, _, _ := runHandshake(t, ci)

	require.Equal(t, offererSigned.AcceptedContract.ContractID, accepterSigned.AcceptedContract.ContractID)
	require.Equal(t, offererSigned.AcceptedContract.DlcTransactions.Fund.TxHash(),
		accepterSigned.AcceptedContract.DlcTransactions.Fund.TxHash())
	require.Equal(t, len(offererSigned.AcceptedContract.DlcTransactions.Cets),
		len(accepterSigned.AcceptedContract.DlcTransactions.Cets))

	for i, txIn := range fundTx.TxIn {
		require.NotEmpty(t, txIn.Witness, "input %d was left unsigned", i)
	}
}

func TestGetSignedCETSettlesWinningOutcome(t *testing.T) {
	oracle := newTestOracle(t)
	nonceX, k := oracle.announce(t)
	ci := enumContractInfoWithOracle(t, oracle, nonceX)

	offererSigned, accepterSigned, _, offerSigners, acceptSigners := runHandshake(t, ci)

	sig := oracle.sign(t, k, enumMsg("go"))
	attestations := []contract.OracleAttestation{{
		PublicKey:  oracle.pubKeyX(),
		EventID:    "rust-vs-go",
		Outcomes:   []string{"go"},
		Signatures: [][64]byte{sig},
	}}

	offerPriv, offerPub, err := offerSigners.DeriveContractSigner([32]byte{1})
	require.NoError(t, err)
	cetFromOfferer, err := GetSignedCET(offererSigned, 0, attestations, offerPriv, offerPub)
	require.NoError(t, err)

	acceptPriv, acceptPub, err := acceptSigners.DeriveContractSigner([32]byte{2})
	require.NoError(t, err)
	cetFromAccepter, err := GetSignedCET(accepterSigned, 0, attestations, acceptPriv, acceptPub)
	require.NoError(t, err)

	require.Equal(t, cetFromOfferer.TxHash(), cetFromAccepter.TxHash())

	var wonOutput bool
	for _, out := range cetFromOfferer.TxOut {
		if out.Value == 200000 {
			wonOutput = true
		}
	}
	require.True(t, wonOutput, "the 'go' outcome should pay the full collateral to the accept party")
}

func TestGetSignedRefundCombinesBothSignatures(t *testing.T) {
	oracle := newTestOracle(t)
	nonceX, _ := oracle.announce(t)
	ci := enumContractInfoWithOracle(t, oracle, nonceX)

	offererSigned, accepterSigned, _, _, _ := runHandshake(t, ci)

	refundFromOfferer, err := GetSignedRefund(offererSigned)
	require.NoError(t, err)
	refundFromAccepter, err := GetSignedRefund(accepterSigned)
	require.NoError(t, err)

	require.Equal(t, refundFromOfferer.TxHash(), refundFromAccepter.TxHash())
	require.NotEmpty(t, refundFromOfferer.TxIn[0].Witness)
}

func TestCooperativeCloseRoundTrip(t *testing.T) {
	oracle := newTestOracle(t)
	nonceX, _ := oracle.announce(t)
	ci := enumContractInfoWithOracle(t, oracle, nonceX)

	offererSigned, accepterSigned, _, offerSigners, acceptSigners := runHandshake(t, ci)

	offerPriv, offerPub, err := offerSigners.DeriveContractSigner([32]byte{1})
	require.NoError(t, err)
	acceptPriv, _, err := acceptSigners.DeriveContractSigner([32]byte{2})
	require.NoError(t, err)

	closeMsg, err := CreateCooperativeClose(accepterSigned, acceptPriv, 120000, 1)
	require.NoError(t, err)
	require.Equal(t, accepterSigned.AcceptedContract.ContractID, closeMsg.ContractID)
	require.Equal(t, btcutil.Amount(120000), closeMsg.AcceptPayout)

	closeTx, err := CompleteCooperativeClose(offererSigned, closeMsg, offerPriv, offerPub)
	require.NoError(t, err)
	require.NotEmpty(t, closeTx.TxIn[0].Witness)
	require.Len(t, closeTx.TxOut, 2)
}
