package dlcwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/txbuilder"
)

// Accept is the acceptor's response to an Offer: its own party params
// plus the full set of CET adaptor signatures and refund signature
// computed against the offerer's proposed transactions. Spec §6 "Accept".
type Accept struct {
	TemporaryContractID contract.ID
	AcceptCollateral     btcutil.Amount
	FundingPubKey        *btcec.PublicKey
	ChangeScript         []byte
	PayoutScript         []byte
	FundingInputs        []txbuilder.FundingInput
	ChangeSerialID       uint64
	PayoutSerialID       uint64
	CetAdaptorSignatures [][]adaptor.Signature
	RefundSignature      ecdsa.Signature
}

func (a *Accept) MsgType() MessageType { return MsgAccept }

func (a *Accept) Encode(w io.Writer) error {
	if err := writeFixed32(w, [32]byte(a.TemporaryContractID)); err != nil {
		return err
	}
	if err := writeInt64(w, int64(a.AcceptCollateral)); err != nil {
		return err
	}
	if err := writePubKey(w, a.FundingPubKey); err != nil {
		return err
	}
	if err := writeVarBytes(w, a.ChangeScript); err != nil {
		return err
	}
	if err := writeVarBytes(w, a.PayoutScript); err != nil {
		return err
	}
	if err := writeFundingInputs(w, a.FundingInputs); err != nil {
		return err
	}
	if err := writeUint64(w, a.ChangeSerialID); err != nil {
		return err
	}
	if err := writeUint64(w, a.PayoutSerialID); err != nil {
		return err
	}
	if err := writeAdaptorSignatureSets(w, a.CetAdaptorSignatures); err != nil {
		return err
	}
	return writeECDSASignatureVar(w, a.RefundSignature)
}

func (a *Accept) Decode(r io.Reader) error {
	var err error

	tempIDBytes, err := readFixed32(r)
	if err != nil {
		return err
	}
	a.TemporaryContractID = contract.ID(tempIDBytes)

	acceptCollateral, err := readInt64(r)
	if err != nil {
		return err
	}
	a.AcceptCollateral = btcutil.Amount(acceptCollateral)

	if a.FundingPubKey, err = readPubKey(r); err != nil {
		return err
	}
	if a.ChangeScript, err = readVarBytes(r); err != nil {
		return err
	}
	if a.PayoutScript, err = readVarBytes(r); err != nil {
		return err
	}
	if a.FundingInputs, err = readFundingInputs(r); err != nil {
		return err
	}
	if a.ChangeSerialID, err = readUint64(r); err != nil {
		return err
	}
	if a.PayoutSerialID, err = readUint64(r); err != nil {
		return err
	}
	if a.CetAdaptorSignatures, err = readAdaptorSignatureSets(r); err != nil {
		return err
	}

	refundSig, err := readECDSASignature(r)
	if err != nil {
		return err
	}
	a.RefundSignature = refundSig
	return nil
}
