package dlcwire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/txbuilder"
)

// maxVectorLen is the longest vector whose length fits a 2-byte length
// prefix; encoders reject anything longer so every length round-trips.
const maxVectorLen = 1<<16 - 1

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

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
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

func writeBool(w io.Writer, v bool) error {
	if v {
		return writeUint8(w, 1)
	}
	return writeUint8(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	v, err := readUint8(r)
	return v != 0, err
}

// writeVarBytes writes a uint16-length-prefixed byte slice. Every
// variable-length field in the DLC protocol fits comfortably under 64KiB,
// so a 2-byte length (rather than wire.VarInt's variable encoding) keeps
// framing fixed-width and simple to eyeball in a packet dump.
func writeVarBytes(w io.Writer, b []byte) error {
	if len(b) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	l, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeVarString(w io.Writer, s string) error {
	return writeVarBytes(w, []byte(s))
}

func readVarString(r io.Reader) (string, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
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
	var raw [33]byte
	copy(raw[:], pub.SerializeCompressed())
	return writeFixed33(w, raw)
}

func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	raw, err := readFixed33(r)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(raw[:])
}

func writeOutPoint(w io.Writer, op wire.OutPoint) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	return writeUint32(w, op.Index)
}

func readOutPoint(r io.Reader) (wire.OutPoint, error) {
	var op wire.OutPoint
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return op, err
	}
	idx, err := readUint32(r)
	op.Index = idx
	return op, err
}

func writeFundingInput(w io.Writer, f txbuilder.FundingInput) error {
	if err := writeOutPoint(w, f.Outpoint); err != nil {
		return err
	}
	value := int64(0)
	var pkScript []byte
	if f.PrevTxOut != nil {
		value = f.PrevTxOut.Value
		pkScript = f.PrevTxOut.PkScript
	}
	if err := writeInt64(w, value); err != nil {
		return err
	}
	if err := writeVarBytes(w, pkScript); err != nil {
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

	op, err := readOutPoint(r)
	if err != nil {
		return f, err
	}
	f.Outpoint = op

	value, err := readInt64(r)
	if err != nil {
		return f, err
	}
	pkScript, err := readVarBytes(r)
	if err != nil {
		return f, err
	}
	if len(pkScript) > 0 {
		f.PrevTxOut = &wire.TxOut{Value: value, PkScript: pkScript}
	}

	witLen, err := readUint32(r)
	if err != nil {
		return f, err
	}
	f.MaxWitnessLen = int(witLen)

	f.RedeemScript, err = readVarBytes(r)
	if err != nil {
		return f, err
	}

	f.SerialID, err = readUint64(r)
	return f, err
}

func writeFundingInputs(w io.Writer, ins []txbuilder.FundingInput) error {
	if len(ins) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(ins))); err != nil {
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
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	out := make([]txbuilder.FundingInput, n)
	for i := range out {
		out[i], err = readFundingInput(r)
		if err != nil {
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

	op, err := readOutPoint(r)
	if err != nil {
		return d, err
	}
	d.Outpoint = op

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

	contractID, err := readFixed32(r)
	if err != nil {
		return d, err
	}
	d.ContractID = contractID

	d.SerialID, err = readUint64(r)
	return d, err
}

func writeDlcInputs(w io.Writer, ins []txbuilder.DlcInput) error {
	if len(ins) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(ins))); err != nil {
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
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	out := make([]txbuilder.DlcInput, n)
	for i := range out {
		out[i], err = readDlcInput(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeEventDescriptor(w io.Writer, d contract.EventDescriptor) error {
	if err := writeUint8(w, uint8(d.Kind)); err != nil {
		return err
	}
	if d.Kind == contract.EventEnum {
		if len(d.Outcomes) > maxVectorLen {
			return errPayloadTooLarge
		}
		if err := writeUint16(w, uint16(len(d.Outcomes))); err != nil {
			return err
		}
		for _, o := range d.Outcomes {
			if err := writeVarString(w, o); err != nil {
				return err
			}
		}
		return nil
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
	var precBytes [4]byte
	binary.BigEndian.PutUint32(precBytes[:], uint32(d.Precision))
	_, err := w.Write(precBytes[:])
	return err
}

func readEventDescriptor(r io.Reader) (contract.EventDescriptor, error) {
	var d contract.EventDescriptor

	kind, err := readUint8(r)
	if err != nil {
		return d, err
	}
	d.Kind = contract.EventDescriptorKind(kind)

	if d.Kind == contract.EventEnum {
		n, err := readUint16(r)
		if err != nil {
			return d, err
		}
		d.Outcomes = make([]string, n)
		for i := range d.Outcomes {
			d.Outcomes[i], err = readVarString(r)
			if err != nil {
				return d, err
			}
		}
		return d, nil
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
	var precBytes [4]byte
	if _, err := io.ReadFull(r, precBytes[:]); err != nil {
		return d, err
	}
	d.Precision = int32(binary.BigEndian.Uint32(precBytes[:]))
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
	if len(a.Nonces) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(a.Nonces))); err != nil {
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

	n, err := readUint16(r)
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
	o.Payout = txbuilder.PayoutEntry{
		OfferSats:  btcutil.Amount(offer),
		AcceptSats: btcutil.Amount(accept),
	}
	return o, nil
}

func writeContractInfo(w io.Writer, ci contract.ContractInfo) error {
	if len(ci.Announcements) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(ci.Announcements))); err != nil {
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
	if len(ci.Outcomes) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(ci.Outcomes))); err != nil {
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

	n, err := readUint16(r)
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

	m, err := readUint16(r)
	if err != nil {
		return ci, err
	}
	ci.Outcomes = make([]contract.Outcome, m)
	for i := range ci.Outcomes {
		if ci.Outcomes[i], err = readOutcome(r); err != nil {
			return ci, err
		}
	}
	return ci, nil
}

func writeContractInfos(w io.Writer, cis []contract.ContractInfo) error {
	if len(cis) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(cis))); err != nil {
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
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	out := make([]contract.ContractInfo, n)
	for i := range out {
		out[i], err = readContractInfo(r)
		if err != nil {
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
		return adaptor.Signature{}, err
	}
	return *sig, nil
}

func writeAdaptorSignatures(w io.Writer, sigs []adaptor.Signature) error {
	if len(sigs) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(sigs))); err != nil {
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
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	out := make([]adaptor.Signature, n)
	for i := range out {
		out[i], err = readAdaptorSignature(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CET adaptor signatures are organized one slice per contract-info,
// mirroring ContractInfo's own position in the Offer's contract_info
// vector (spec §6 "cet_adaptor_signatures").
func writeAdaptorSignatureSets(w io.Writer, sets [][]adaptor.Signature) error {
	if len(sets) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(sets))); err != nil {
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
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	out := make([][]adaptor.Signature, n)
	for i := range out {
		out[i], err = readAdaptorSignatures(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readECDSASignature(r io.Reader) (ecdsa.Signature, error) {
	der, err := readVarBytes(r)
	if err != nil {
		return ecdsa.Signature{}, err
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return ecdsa.Signature{}, err
	}
	return *sig, nil
}

// writeECDSASignatureVar writes sig's DER encoding with a length prefix,
// since DER-encoded signatures are not fixed-width.
func writeECDSASignatureVar(w io.Writer, sig ecdsa.Signature) error {
	return writeVarBytes(w, sig.Serialize())
}

func writeWitness(w io.Writer, wit wire.TxWitness) error {
	if len(wit) > math.MaxUint8 {
		return errPayloadTooLarge
	}
	if err := writeUint8(w, uint8(len(wit))); err != nil {
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
	n, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	wit := make(wire.TxWitness, n)
	for i := range wit {
		wit[i], err = readVarBytes(r)
		if err != nil {
			return nil, err
		}
	}
	return wit, nil
}

func writeWitnessSets(w io.Writer, sets []wire.TxWitness) error {
	if len(sets) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(sets))); err != nil {
		return err
	}
	for _, wit := range sets {
		if err := writeWitness(w, wit); err != nil {
			return err
		}
	}
	return nil
}

func readWitnessSets(r io.Reader) ([]wire.TxWitness, error) {
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	out := make([]wire.TxWitness, n)
	for i := range out {
		out[i], err = readWitness(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
