package dlcstore

// codec.go implements the persisted-row encoding of spec §6: "one-byte
// state prefix followed by the aggregate's canonical encoding". Each
// backend (memstore, boltstore, postgres) calls EncodeContract/
// DecodeContract to turn a *contract.Contract into the row payload it
// stores. The low-level primitives mirror dlcwire/codec.go's own
// uint/varbytes helpers; dlcstore keeps its own copy rather than
// exporting dlcwire's, the same way channeldb's serialize/deserialize
// helpers are package-local to channeldb rather than shared.

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
	"github.com/btcdlc/dlcd/txbuilder"
)

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeBool(w io.Writer, v bool) error {
	if v {
		return writeUint8(w, 1)
	}
	return writeUint8(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	b, err := readUint8(r)
	return b != 0, err
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeInt64(w io.Writer, v int64) error {
	return writeUint64(w, uint64(v))
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeVarBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeVarString(w io.Writer, s string) error {
	return writeVarBytes(w, []byte(s))
}

func readVarString(r io.Reader) (string, error) {
	b, err := readVarBytes(r)
	return string(b), err
}

func writeFixed32(w io.Writer, b [32]byte) error {
	_, err := w.Write(b[:])
	return err
}

func readFixed32(r io.Reader) ([32]byte, error) {
	var b [32]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func writeFixed33(w io.Writer, b [33]byte) error {
	_, err := w.Write(b[:])
	return err
}

func readFixed33(r io.Reader) ([33]byte, error) {
	var b [33]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func writeFixed64(w io.Writer, b [64]byte) error {
	_, err := w.Write(b[:])
	return err
}

func readFixed64(r io.Reader) ([64]byte, error) {
	var b [64]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func writePubKey(w io.Writer, pub *btcec.PublicKey) error {
	return writeFixed33(w, [33]byte(pub.SerializeCompressed()))
}

func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	raw, err := readFixed33(r)
	if err != nil {
		return nil, err
	}
	pub, err := btcec.ParsePubKey(raw[:])
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.StorageError, err, "corrupt public key in stored contract")
	}
	return pub, nil
}

func writeOutPoint(w io.Writer, op wire.OutPoint) error {
	if err := writeFixed32(w, [32]byte(op.Hash)); err != nil {
		return err
	}
	return writeUint32(w, op.Index)
}

func readOutPoint(r io.Reader) (wire.OutPoint, error) {
	hashBytes, err := readFixed32(r)
	if err != nil {
		return wire.OutPoint{}, err
	}
	index, err := readUint32(r)
	if err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: chainhash.Hash(hashBytes), Index: index}, nil
}

func writeTx(w io.Writer, tx *wire.MsgTx) error {
	present := tx != nil
	if err := writeBool(w, present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	return writeVarBytes(w, buf.Bytes())
}

func readTx(r io.Reader) (*wire.MsgTx, error) {
	present, err := readBool(r)
	if err != nil || !present {
		return nil, err
	}
	raw, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, dlcerr.Wrap(dlcerr.StorageError, err, "corrupt transaction in stored contract")
	}
	return tx, nil
}

func writeTxOut(w io.Writer, out *wire.TxOut) error {
	present := out != nil
	if err := writeBool(w, present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	if err := writeInt64(w, out.Value); err != nil {
		return err
	}
	return writeVarBytes(w, out.PkScript)
}

func readTxOut(r io.Reader) (*wire.TxOut, error) {
	present, err := readBool(r)
	if err != nil || !present {
		return nil, err
	}
	value, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	pkScript, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	return wire.NewTxOut(value, pkScript), nil
}

func writeWitness(w io.Writer, wit wire.TxWitness) error {
	if err := writeUint32(w, uint32(len(wit))); err != nil {
		return err
	}
	for _, elem := range wit {
		if err := writeVarBytes(w, elem); err != nil {
			return err
		}
	}
	return nil
}

func readWitness(r io.Reader) (wire.TxWitness, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(wire.TxWitness, n)
	for i := range out {
		if out[i], err = readVarBytes(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeWitnesses(w io.Writer, wits []wire.TxWitness) error {
	if err := writeUint32(w, uint32(len(wits))); err != nil {
		return err
	}
	for _, wit := range wits {
		if err := writeWitness(w, wit); err != nil {
			return err
		}
	}
	return nil
}

func readWitnesses(r io.Reader) ([]wire.TxWitness, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]wire.TxWitness, n)
	for i := range out {
		if out[i], err = readWitness(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeAdaptorSignature(w io.Writer, s adaptor.Signature) error {
	_, err := w.Write(s.Serialize())
	return err
}

func readAdaptorSignature(r io.Reader) (adaptor.Signature, error) {
	raw := make([]byte, adaptor.SignatureSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return adaptor.Signature{}, err
	}
	sig, err := adaptor.ParseSignature(raw)
	if err != nil {
		return adaptor.Signature{}, dlcerr.Wrap(dlcerr.StorageError, err, "corrupt adaptor signature in stored contract")
	}
	return *sig, nil
}

func writeAdaptorSignatures(w io.Writer, sigs []adaptor.Signature) error {
	if err := writeUint32(w, uint32(len(sigs))); err != nil {
		return err
	}
	for _, s := range sigs {
		if err := writeAdaptorSignature(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readAdaptorSignatures(r io.Reader) ([]adaptor.Signature, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]adaptor.Signature, n)
	for i := range out {
		if out[i], err = readAdaptorSignature(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeAdaptorSignatureSets(w io.Writer, sets [][]adaptor.Signature) error {
	if err := writeUint32(w, uint32(len(sets))); err != nil {
		return err
	}
	for _, s := range sets {
		if err := writeAdaptorSignatures(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readAdaptorSignatureSets(r io.Reader) ([][]adaptor.Signature, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([][]adaptor.Signature, n)
	for i := range out {
		if out[i], err = readAdaptorSignatures(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeECDSASignature(w io.Writer, sig ecdsa.Signature) error {
	return writeVarBytes(w, sig.Serialize())
}

func readECDSASignature(r io.Reader) (ecdsa.Signature, error) {
	der, err := readVarBytes(r)
	if err != nil {
		return ecdsa.Signature{}, err
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return ecdsa.Signature{}, dlcerr.Wrap(dlcerr.StorageError, err, "corrupt signature in stored contract")
	}
	return *sig, nil
}

func writeAdaptorInfo(w io.Writer, info *contract.AdaptorInfo) error {
	present := info != nil
	if err := writeBool(w, present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	entries := info.Entries()
	if err := writeUint32(w, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeVarBytes(w, e.Path); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(e.CetIndex)); err != nil {
			return err
		}
	}
	return nil
}

func readAdaptorInfo(r io.Reader) (*contract.AdaptorInfo, error) {
	present, err := readBool(r)
	if err != nil || !present {
		return nil, err
	}
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	entries := make([]contract.Entry, n)
	for i := range entries {
		path, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		cetIdx, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		entries[i] = contract.Entry{Path: path, CetIndex: int(cetIdx)}
	}
	return contract.NewAdaptorInfoFromEntries(entries), nil
}

func writeAdaptorInfos(w io.Writer, infos []*contract.AdaptorInfo) error {
	if err := writeUint32(w, uint32(len(infos))); err != nil {
		return err
	}
	for _, info := range infos {
		if err := writeAdaptorInfo(w, info); err != nil {
			return err
		}
	}
	return nil
}

func readAdaptorInfos(r io.Reader) ([]*contract.AdaptorInfo, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]*contract.AdaptorInfo, n)
	for i := range out {
		if out[i], err = readAdaptorInfo(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeEventDescriptor(w io.Writer, d contract.EventDescriptor) error {
	if err := writeUint8(w, uint8(d.Kind)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(d.Outcomes))); err != nil {
		return err
	}
	for _, o := range d.Outcomes {
		if err := writeVarString(w, o); err != nil {
			return err
		}
	}
	if err := writeUint32(w, d.Base); err != nil {
		return err
	}
	if err := writeUint32(w, d.NbDigits); err != nil {
		return err
	}
	if err := writeBool(w, d.IsSigned); err != nil {
		return err
	}
	if err := writeVarString(w, d.Unit); err != nil {
		return err
	}
	var precision [4]byte
	binary.BigEndian.PutUint32(precision[:], uint32(d.Precision))
	_, err := w.Write(precision[:])
	return err
}

func readEventDescriptor(r io.Reader) (contract.EventDescriptor, error) {
	var d contract.EventDescriptor
	kind, err := readUint8(r)
	if err != nil {
		return d, err
	}
	d.Kind = contract.EventDescriptorKind(kind)

	n, err := readUint32(r)
	if err != nil {
		return d, err
	}
	d.Outcomes = make([]string, n)
	for i := range d.Outcomes {
		if d.Outcomes[i], err = readVarString(r); err != nil {
			return d, err
		}
	}
	if d.Base, err = readUint32(r); err != nil {
		return d, err
	}
	if d.NbDigits, err = readUint32(r); err != nil {
		return d, err
	}
	if d.IsSigned, err = readBool(r); err != nil {
		return d, err
	}
	if d.Unit, err = readVarString(r); err != nil {
		return d, err
	}
	var precision [4]byte
	if _, err := io.ReadFull(r, precision[:]); err != nil {
		return d, err
	}
	d.Precision = int32(binary.BigEndian.Uint32(precision[:]))
	return d, nil
}

func writeAnnouncement(w io.Writer, a contract.OracleAnnouncement) error {
	if err := writeFixed32(w, a.PublicKey); err != nil {
		return err
	}
	if err := writeVarString(w, a.EventID); err != nil {
		return err
	}
	if err := writeEventDescriptor(w, a.Descriptor); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(a.Nonces))); err != nil {
		return err
	}
	for _, n := range a.Nonces {
		if err := writeFixed32(w, n); err != nil {
			return err
		}
	}
	return writeFixed64(w, a.AnnouncementSignature)
}

func readAnnouncement(r io.Reader) (contract.OracleAnnouncement, error) {
	var a contract.OracleAnnouncement
	var err error
	if a.PublicKey, err = readFixed32(r); err != nil {
		return a, err
	}
	if a.EventID, err = readVarString(r); err != nil {
		return a, err
	}
	if a.Descriptor, err = readEventDescriptor(r); err != nil {
		return a, err
	}
	n, err := readUint32(r)
	if err != nil {
		return a, err
	}
	a.Nonces = make([][32]byte, n)
	for i := range a.Nonces {
		if a.Nonces[i], err = readFixed32(r); err != nil {
			return a, err
		}
	}
	a.AnnouncementSignature, err = readFixed64(r)
	return a, err
}

func writeOutcome(w io.Writer, o contract.Outcome) error {
	if err := writeVarBytes(w, o.Path); err != nil {
		return err
	}
	if err := writeInt64(w, int64(o.Payout.OfferSats)); err != nil {
		return err
	}
	return writeInt64(w, int64(o.Payout.AcceptSats))
}

func readOutcome(r io.Reader) (contract.Outcome, error) {
	var o contract.Outcome
	var err error
	if o.Path, err = readVarBytes(r); err != nil {
		return o, err
	}
	offer, err := readInt64(r)
	if err != nil {
		return o, err
	}
	accept, err := readInt64(r)
	if err != nil {
		return o, err
	}
	o.Payout = txbuilder.PayoutEntry{OfferSats: btcutil.Amount(offer), AcceptSats: btcutil.Amount(accept)}
	return o, nil
}

func writeContractInfo(w io.Writer, ci contract.ContractInfo) error {
	if err := writeUint32(w, uint32(len(ci.Announcements))); err != nil {
		return err
	}
	for _, a := range ci.Announcements {
		if err := writeAnnouncement(w, a); err != nil {
			return err
		}
	}
	if err := writeUint32(w, ci.Threshold); err != nil {
		return err
	}
	if err := writeInt64(w, int64(ci.TotalCollateral)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(ci.Outcomes))); err != nil {
		return err
	}
	for _, o := range ci.Outcomes {
		if err := writeOutcome(w, o); err != nil {
			return err
		}
	}
	return nil
}

func readContractInfo(r io.Reader) (contract.ContractInfo, error) {
	var ci contract.ContractInfo
	n, err := readUint32(r)
	if err != nil {
		return ci, err
	}
	ci.Announcements = make([]contract.OracleAnnouncement, n)
	for i := range ci.Announcements {
		if ci.Announcements[i], err = readAnnouncement(r); err != nil {
			return ci, err
		}
	}
	if ci.Threshold, err = readUint32(r); err != nil {
		return ci, err
	}
	total, err := readInt64(r)
	if err != nil {
		return ci, err
	}
	ci.TotalCollateral = btcutil.Amount(total)

	n, err = readUint32(r)
	if err != nil {
		return ci, err
	}
	ci.Outcomes = make([]contract.Outcome, n)
	for i := range ci.Outcomes {
		if ci.Outcomes[i], err = readOutcome(r); err != nil {
			return ci, err
		}
	}
	return ci, nil
}

func writeContractInfos(w io.Writer, cis []contract.ContractInfo) error {
	if err := writeUint32(w, uint32(len(cis))); err != nil {
		return err
	}
	for _, ci := range cis {
		if err := writeContractInfo(w, ci); err != nil {
			return err
		}
	}
	return nil
}

func readContractInfos(r io.Reader) ([]contract.ContractInfo, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]contract.ContractInfo, n)
	for i := range out {
		if out[i], err = readContractInfo(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeAttestation(w io.Writer, a contract.OracleAttestation) error {
	if err := writeFixed32(w, a.PublicKey); err != nil {
		return err
	}
	if err := writeVarString(w, a.EventID); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(a.Outcomes))); err != nil {
		return err
	}
	for _, o := range a.Outcomes {
		if err := writeVarString(w, o); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(a.Signatures))); err != nil {
		return err
	}
	for _, s := range a.Signatures {
		if err := writeFixed64(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readAttestation(r io.Reader) (contract.OracleAttestation, error) {
	var a contract.OracleAttestation
	var err error
	if a.PublicKey, err = readFixed32(r); err != nil {
		return a, err
	}
	if a.EventID, err = readVarString(r); err != nil {
		return a, err
	}
	n, err := readUint32(r)
	if err != nil {
		return a, err
	}
	a.Outcomes = make([]string, n)
	for i := range a.Outcomes {
		if a.Outcomes[i], err = readVarString(r); err != nil {
			return a, err
		}
	}
	n, err = readUint32(r)
	if err != nil {
		return a, err
	}
	a.Signatures = make([][64]byte, n)
	for i := range a.Signatures {
		if a.Signatures[i], err = readFixed64(r); err != nil {
			return a, err
		}
	}
	return a, nil
}

func writeAttestations(w io.Writer, attestations []contract.OracleAttestation) error {
	if err := writeUint32(w, uint32(len(attestations))); err != nil {
		return err
	}
	for _, a := range attestations {
		if err := writeAttestation(w, a); err != nil {
			return err
		}
	}
	return nil
}

func readAttestations(r io.Reader) ([]contract.OracleAttestation, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]contract.OracleAttestation, n)
	for i := range out {
		if out[i], err = readAttestation(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeFundingInput(w io.Writer, f txbuilder.FundingInput) error {
	if err := writeOutPoint(w, f.Outpoint); err != nil {
		return err
	}
	if err := writeTxOut(w, f.PrevTxOut); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(f.MaxWitnessLen)); err != nil {
		return err
	}
	if err := writeVarBytes(w, f.RedeemScript); err != nil {
		return err
	}
	return writeUint64(w, f.SerialID)
}

func readFundingInput(r io.Reader) (txbuilder.FundingInput, error) {
	var f txbuilder.FundingInput
	var err error
	if f.Outpoint, err = readOutPoint(r); err != nil {
		return f, err
	}
	if f.PrevTxOut, err = readTxOut(r); err != nil {
		return f, err
	}
	witLen, err := readUint32(r)
	if err != nil {
		return f, err
	}
	f.MaxWitnessLen = int(witLen)
	if f.RedeemScript, err = readVarBytes(r); err != nil {
		return f, err
	}
	f.SerialID, err = readUint64(r)
	return f, err
}

func writeFundingInputs(w io.Writer, ins []txbuilder.FundingInput) error {
	if err := writeUint32(w, uint32(len(ins))); err != nil {
		return err
	}
	for _, in := range ins {
		if err := writeFundingInput(w, in); err != nil {
			return err
		}
	}
	return nil
}

func readFundingInputs(r io.Reader) ([]txbuilder.FundingInput, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]txbuilder.FundingInput, n)
	for i := range out {
		if out[i], err = readFundingInput(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeDlcInput(w io.Writer, d txbuilder.DlcInput) error {
	if err := writeOutPoint(w, d.Outpoint); err != nil {
		return err
	}
	if err := writeInt64(w, int64(d.Value)); err != nil {
		return err
	}
	if err := writePubKey(w, d.LocalFundPubKey); err != nil {
		return err
	}
	if err := writePubKey(w, d.RemoteFundPubKey); err != nil {
		return err
	}
	if err := writeFixed32(w, d.ContractID); err != nil {
		return err
	}
	return writeUint64(w, d.SerialID)
}

func readDlcInput(r io.Reader) (txbuilder.DlcInput, error) {
	var d txbuilder.DlcInput
	var err error
	if d.Outpoint, err = readOutPoint(r); err != nil {
		return d, err
	}
	value, err := readInt64(r)
	if err != nil {
		return d, err
	}
	d.Value = btcutil.Amount(value)
	if d.LocalFundPubKey, err = readPubKey(r); err != nil {
		return d, err
	}
	if d.RemoteFundPubKey, err = readPubKey(r); err != nil {
		return d, err
	}
	if d.ContractID, err = readFixed32(r); err != nil {
		return d, err
	}
	d.SerialID, err = readUint64(r)
	return d, err
}

func writeDlcInputs(w io.Writer, ins []txbuilder.DlcInput) error {
	if err := writeUint32(w, uint32(len(ins))); err != nil {
		return err
	}
	for _, in := range ins {
		if err := writeDlcInput(w, in); err != nil {
			return err
		}
	}
	return nil
}

func readDlcInputs(r io.Reader) ([]txbuilder.DlcInput, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]txbuilder.DlcInput, n)
	for i := range out {
		if out[i], err = readDlcInput(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writePartyParams(w io.Writer, p txbuilder.PartyParams) error {
	if err := writePubKey(w, p.FundingPubKey); err != nil {
		return err
	}
	if err := writeVarBytes(w, p.ChangeScript); err != nil {
		return err
	}
	if err := writeVarBytes(w, p.PayoutScript); err != nil {
		return err
	}
	if err := writeUint64(w, p.ChangeSerialID); err != nil {
		return err
	}
	if err := writeUint64(w, p.PayoutSerialID); err != nil {
		return err
	}
	if err := writeFundingInputs(w, p.FundingInputs); err != nil {
		return err
	}
	if err := writeDlcInputs(w, p.DlcInputs); err != nil {
		return err
	}
	if err := writeInt64(w, int64(p.CollateralAmount)); err != nil {
		return err
	}
	return writeInt64(w, int64(p.InputAmount))
}

func readPartyParams(r io.Reader) (txbuilder.PartyParams, error) {
	var p txbuilder.PartyParams
	var err error
	if p.FundingPubKey, err = readPubKey(r); err != nil {
		return p, err
	}
	if p.ChangeScript, err = readVarBytes(r); err != nil {
		return p, err
	}
	if p.PayoutScript, err = readVarBytes(r); err != nil {
		return p, err
	}
	if p.ChangeSerialID, err = readUint64(r); err != nil {
		return p, err
	}
	if p.PayoutSerialID, err = readUint64(r); err != nil {
		return p, err
	}
	if p.FundingInputs, err = readFundingInputs(r); err != nil {
		return p, err
	}
	if p.DlcInputs, err = readDlcInputs(r); err != nil {
		return p, err
	}
	collateral, err := readInt64(r)
	if err != nil {
		return p, err
	}
	p.CollateralAmount = btcutil.Amount(collateral)
	inputAmount, err := readInt64(r)
	p.InputAmount = btcutil.Amount(inputAmount)
	return p, err
}

func writeDlcTransactions(w io.Writer, txs txbuilder.DlcTransactions) error {
	if err := writeTx(w, txs.Fund); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(txs.Cets))); err != nil {
		return err
	}
	for _, cet := range txs.Cets {
		if err := writeTx(w, cet); err != nil {
			return err
		}
	}
	if err := writeTx(w, txs.Refund); err != nil {
		return err
	}
	if err := writeVarBytes(w, txs.FundingRedeemScript); err != nil {
		return err
	}
	if err := writeVarBytes(w, txs.FundingScriptPubKey); err != nil {
		return err
	}
	return writeUint32(w, uint32(txs.FundOutputIndex))
}

func readDlcTransactions(r io.Reader) (txbuilder.DlcTransactions, error) {
	var txs txbuilder.DlcTransactions
	var err error
	if txs.Fund, err = readTx(r); err != nil {
		return txs, err
	}
	n, err := readUint32(r)
	if err != nil {
		return txs, err
	}
	txs.Cets = make([]*wire.MsgTx, n)
	for i := range txs.Cets {
		if txs.Cets[i], err = readTx(r); err != nil {
			return txs, err
		}
	}
	if txs.Refund, err = readTx(r); err != nil {
		return txs, err
	}
	if txs.FundingRedeemScript, err = readVarBytes(r); err != nil {
		return txs, err
	}
	if txs.FundingScriptPubKey, err = readVarBytes(r); err != nil {
		return txs, err
	}
	fundOutIdx, err := readUint32(r)
	txs.FundOutputIndex = int(fundOutIdx)
	return txs, err
}

func writeOfferedContract(w io.Writer, o *contract.OfferedContract) error {
	if err := writeFixed32(w, [32]byte(o.ID)); err != nil {
		return err
	}
	if err := writeBool(w, o.IsOfferParty); err != nil {
		return err
	}
	if err := writeFixed33(w, o.CounterParty); err != nil {
		return err
	}
	if err := writeContractInfos(w, o.ContractInfo); err != nil {
		return err
	}
	if err := writeInt64(w, int64(o.TotalCollateral)); err != nil {
		return err
	}
	if err := writePartyParams(w, o.OfferParams); err != nil {
		return err
	}
	if err := writeUint64(w, o.FundOutputSerialID); err != nil {
		return err
	}
	if err := writeInt64(w, o.FeeRatePerVByte); err != nil {
		return err
	}
	if err := writeUint32(w, o.CetLockTime); err != nil {
		return err
	}
	return writeUint32(w, o.RefundLockTime)
}

func readOfferedContract(r io.Reader) (*contract.OfferedContract, error) {
	o := &contract.OfferedContract{}
	idBytes, err := readFixed32(r)
	if err != nil {
		return nil, err
	}
	o.ID = contract.ID(idBytes)
	if o.IsOfferParty, err = readBool(r); err != nil {
		return nil, err
	}
	if o.CounterParty, err = readFixed33(r); err != nil {
		return nil, err
	}
	if o.ContractInfo, err = readContractInfos(r); err != nil {
		return nil, err
	}
	total, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	o.TotalCollateral = btcutil.Amount(total)
	if o.OfferParams, err = readPartyParams(r); err != nil {
		return nil, err
	}
	if o.FundOutputSerialID, err = readUint64(r); err != nil {
		return nil, err
	}
	if o.FeeRatePerVByte, err = readInt64(r); err != nil {
		return nil, err
	}
	if o.CetLockTime, err = readUint32(r); err != nil {
		return nil, err
	}
	o.RefundLockTime, err = readUint32(r)
	return o, err
}

func writeAcceptedContract(w io.Writer, a *contract.AcceptedContract) error {
	if err := writeOfferedContract(w, &a.OfferedContract); err != nil {
		return err
	}
	if err := writePartyParams(w, a.AcceptParams); err != nil {
		return err
	}
	if err := writeDlcTransactions(w, a.DlcTransactions); err != nil {
		return err
	}
	if err := writeAdaptorSignatureSets(w, a.AdaptorSignatures); err != nil {
		return err
	}
	if err := writeAdaptorInfos(w, a.AdaptorInfos); err != nil {
		return err
	}
	if err := writeECDSASignature(w, a.RefundSignature); err != nil {
		return err
	}
	return writeFixed32(w, [32]byte(a.ContractID))
}

func readAcceptedContract(r io.Reader) (*contract.AcceptedContract, error) {
	a := &contract.AcceptedContract{}
	offered, err := readOfferedContract(r)
	if err != nil {
		return nil, err
	}
	a.OfferedContract = *offered
	if a.AcceptParams, err = readPartyParams(r); err != nil {
		return nil, err
	}
	if a.DlcTransactions, err = readDlcTransactions(r); err != nil {
		return nil, err
	}
	if a.AdaptorSignatures, err = readAdaptorSignatureSets(r); err != nil {
		return nil, err
	}
	if a.AdaptorInfos, err = readAdaptorInfos(r); err != nil {
		return nil, err
	}
	if a.RefundSignature, err = readECDSASignature(r); err != nil {
		return nil, err
	}
	idBytes, err := readFixed32(r)
	if err != nil {
		return nil, err
	}
	a.ContractID = contract.ID(idBytes)
	return a, nil
}

func writeSignedContract(w io.Writer, s *contract.SignedContract) error {
	if err := writeAcceptedContract(w, &s.AcceptedContract); err != nil {
		return err
	}
	if err := writeAdaptorSignatureSets(w, s.AdaptorSignatures); err != nil {
		return err
	}
	if err := writeECDSASignature(w, s.RefundSignature); err != nil {
		return err
	}
	return writeWitnesses(w, s.FundingSignatures)
}

func readSignedContract(r io.Reader) (*contract.SignedContract, error) {
	s := &contract.SignedContract{}
	accepted, err := readAcceptedContract(r)
	if err != nil {
		return nil, err
	}
	s.AcceptedContract = *accepted
	if s.AdaptorSignatures, err = readAdaptorSignatureSets(r); err != nil {
		return nil, err
	}
	if s.RefundSignature, err = readECDSASignature(r); err != nil {
		return nil, err
	}
	s.FundingSignatures, err = readWitnesses(r)
	return s, err
}

func writePreClosedContract(w io.Writer, p *contract.PreClosedContract) error {
	if err := writeSignedContract(w, &p.SignedContract); err != nil {
		return err
	}
	if err := writeAttestations(w, p.Attestations); err != nil {
		return err
	}
	return writeTx(w, p.SignedCet)
}

func readPreClosedContract(r io.Reader) (*contract.PreClosedContract, error) {
	p := &contract.PreClosedContract{}
	signed, err := readSignedContract(r)
	if err != nil {
		return nil, err
	}
	p.SignedContract = *signed
	if p.Attestations, err = readAttestations(r); err != nil {
		return nil, err
	}
	p.SignedCet, err = readTx(r)
	return p, err
}

func writeClosedContract(w io.Writer, c *contract.ClosedContract) error {
	if err := writeAttestations(w, c.Attestations); err != nil {
		return err
	}
	if err := writeTx(w, c.SignedCet); err != nil {
		return err
	}
	if err := writeFixed32(w, [32]byte(c.ContractID)); err != nil {
		return err
	}
	if err := writeFixed32(w, [32]byte(c.TemporaryContractID)); err != nil {
		return err
	}
	if err := writeFixed33(w, c.CounterPartyID); err != nil {
		return err
	}
	if err := writeFixed32(w, [32]byte(c.FundingTxid)); err != nil {
		return err
	}
	return writeInt64(w, c.PnLSats)
}

func readClosedContract(r io.Reader) (*contract.ClosedContract, error) {
	c := &contract.ClosedContract{}
	var err error
	if c.Attestations, err = readAttestations(r); err != nil {
		return nil, err
	}
	if c.SignedCet, err = readTx(r); err != nil {
		return nil, err
	}
	idBytes, err := readFixed32(r)
	if err != nil {
		return nil, err
	}
	c.ContractID = contract.ID(idBytes)
	tempIDBytes, err := readFixed32(r)
	if err != nil {
		return nil, err
	}
	c.TemporaryContractID = contract.ID(tempIDBytes)
	if c.CounterPartyID, err = readFixed33(r); err != nil {
		return nil, err
	}
	fundingTxidBytes, err := readFixed32(r)
	if err != nil {
		return nil, err
	}
	c.FundingTxid = chainhash.Hash(fundingTxidBytes)
	c.PnLSats, err = readInt64(r)
	return c, err
}

// EncodeContract writes c's tagged-union row encoding: a one-byte Stage
// prefix followed by the canonical encoding of whichever aggregate that
// stage holds. Spec §6 "Persisted state layout".
func EncodeContract(w io.Writer, c *contract.Contract) error {
	if err := writeUint8(w, uint8(c.Stage)); err != nil {
		return err
	}
	switch c.Stage {
	case contract.StageOffered, contract.StageRejected:
		return writeOfferedContract(w, c.Offered)
	case contract.StageAccepted:
		return writeAcceptedContract(w, c.Accepted)
	case contract.StageSigned, contract.StageConfirmed, contract.StageRefunded:
		return writeSignedContract(w, c.Signed)
	case contract.StagePreClosed:
		return writePreClosedContract(w, c.PreClosed)
	case contract.StageClosed:
		return writeClosedContract(w, c.Closed)
	case contract.StageFailedAccept:
		if err := writeOfferedContract(w, &c.FailedAccept.OfferedContract); err != nil {
			return err
		}
		return writeVarString(w, c.FailedAccept.ErrorMessage)
	case contract.StageFailedSign:
		if err := writeAcceptedContract(w, &c.FailedSign.AcceptedContract); err != nil {
			return err
		}
		return writeVarString(w, c.FailedSign.ErrorMessage)
	default:
		return dlcerr.New(dlcerr.StorageError, "unknown contract stage %d, cannot encode", c.Stage)
	}
}

// DecodeContract reconstructs a *contract.Contract from EncodeContract's
// output.
func DecodeContract(r io.Reader) (*contract.Contract, error) {
	stageByte, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	stage := contract.Stage(stageByte)
	out := &contract.Contract{Stage: stage}

	switch stage {
	case contract.StageOffered, contract.StageRejected:
		out.Offered, err = readOfferedContract(r)
	case contract.StageAccepted:
		out.Accepted, err = readAcceptedContract(r)
	case contract.StageSigned, contract.StageConfirmed, contract.StageRefunded:
		out.Signed, err = readSignedContract(r)
	case contract.StagePreClosed:
		out.PreClosed, err = readPreClosedContract(r)
	case contract.StageClosed:
		out.Closed, err = readClosedContract(r)
	case contract.StageFailedAccept:
		var offered *contract.OfferedContract
		offered, err = readOfferedContract(r)
		if err == nil {
			out.FailedAccept = &contract.FailedAcceptContract{OfferedContract: *offered}
			out.FailedAccept.ErrorMessage, err = readVarString(r)
		}
	case contract.StageFailedSign:
		var accepted *contract.AcceptedContract
		accepted, err = readAcceptedContract(r)
		if err == nil {
			out.FailedSign = &contract.FailedSignContract{AcceptedContract: *accepted}
			out.FailedSign.ErrorMessage, err = readVarString(r)
		}
	default:
		return nil, dlcerr.New(dlcerr.StorageError, "unknown contract stage %d in stored row", stage)
	}
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.StorageError, err, "unable to decode stored contract")
	}
	return out, nil
}
