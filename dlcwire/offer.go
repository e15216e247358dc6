package dlcwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/txbuilder"
)

// Offer is the first message of the DLC handshake: the offerer's
// proposed contract terms. Spec §6 "Offer".
type Offer struct {
	ProtocolVersion     uint32
	ChainHash           chainhash.Hash
	TemporaryContractID contract.ID
	ContractInfo        []contract.ContractInfo
	FundingPubKey       *btcec.PublicKey
	ChangeScript        []byte
	PayoutScript        []byte
	OfferCollateral     btcutil.Amount
	FundingInputs       []txbuilder.FundingInput
	DlcInputs           []txbuilder.DlcInput
	ChangeSerialID      uint64
	PayoutSerialID      uint64
	FundOutputSerialID  uint64
	FeeRatePerVByte     int64
	CetLockTime         uint32
	RefundLockTime      uint32
}

func (o *Offer) MsgType() MessageType { return MsgOffer }

func (o *Offer) Encode(w io.Writer) error {
	if err := writeUint32(w, o.ProtocolVersion); err != nil {
		return err
	}
	if err := writeFixed32(w, [32]byte(o.ChainHash)); err != nil {
		return err
	}
	if err := writeFixed32(w, [32]byte(o.TemporaryContractID)); err != nil {
		return err
	}
	if err := writeContractInfos(w, o.ContractInfo); err != nil {
		return err
	}
	if err := writePubKey(w, o.FundingPubKey); err != nil {
		return err
	}
	if err := writeVarBytes(w, o.ChangeScript); err != nil {
		return err
	}
	if err := writeVarBytes(w, o.PayoutScript); err != nil {
		return err
	}
	if err := writeInt64(w, int64(o.OfferCollateral)); err != nil {
		return err
	}
	if err := writeFundingInputs(w, o.FundingInputs); err != nil {
		return err
	}
	if err := writeDlcInputs(w, o.DlcInputs); err != nil {
		return err
	}
	if err := writeUint64(w, o.ChangeSerialID); err != nil {
		return err
	}
	if err := writeUint64(w, o.PayoutSerialID); err != nil {
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

func (o *Offer) Decode(r io.Reader) error {
	var err error

	if o.ProtocolVersion, err = readUint32(r); err != nil {
		return err
	}
	chainHashBytes, err := readFixed32(r)
	if err != nil {
		return err
	}
	o.ChainHash = chainhash.Hash(chainHashBytes)

	tempIDBytes, err := readFixed32(r)
	if err != nil {
		return err
	}
	o.TemporaryContractID = contract.ID(tempIDBytes)

	if o.ContractInfo, err = readContractInfos(r); err != nil {
		return err
	}
	if o.FundingPubKey, err = readPubKey(r); err != nil {
		return err
	}
	if o.ChangeScript, err = readVarBytes(r); err != nil {
		return err
	}
	if o.PayoutScript, err = readVarBytes(r); err != nil {
		return err
	}
	offerCollateral, err := readInt64(r)
	if err != nil {
		return err
	}
	o.OfferCollateral = btcutil.Amount(offerCollateral)

	if o.FundingInputs, err = readFundingInputs(r); err != nil {
		return err
	}
	if o.DlcInputs, err = readDlcInputs(r); err != nil {
		return err
	}
	if o.ChangeSerialID, err = readUint64(r); err != nil {
		return err
	}
	if o.PayoutSerialID, err = readUint64(r); err != nil {
		return err
	}
	if o.FundOutputSerialID, err = readUint64(r); err != nil {
		return err
	}
	if o.FeeRatePerVByte, err = readInt64(r); err != nil {
		return err
	}
	if o.CetLockTime, err = readUint32(r); err != nil {
		return err
	}
	o.RefundLockTime, err = readUint32(r)
	return err
}
