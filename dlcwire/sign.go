package dlcwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/adaptor"
	"github.com/btcdlc/dlcd/contract"
)

// Sign is the offerer's final message: its own CET adaptor signatures,
// refund signature, and the witness data for each of its funding inputs,
// completing both parties' signature sets. Spec §6 "Sign".
type Sign struct {
	ContractID           contract.ID
	CetAdaptorSignatures [][]adaptor.Signature
	RefundSignature      ecdsa.Signature
	FundingSignatures     []wire.TxWitness
}

func (s *Sign) MsgType() MessageType { return MsgSign }

func (s *Sign) Encode(w io.Writer) error {
	if err := writeFixed32(w, [32]byte(s.ContractID)); err != nil {
		return err
	}
	if err := writeAdaptorSignatureSets(w, s.CetAdaptorSignatures); err != nil {
		return err
	}
	if err := writeECDSASignatureVar(w, s.RefundSignature); err != nil {
		return err
	}
	return writeWitnessSets(w, s.FundingSignatures)
}

func (s *Sign) Decode(r io.Reader) error {
	var err error

	idBytes, err := readFixed32(r)
	if err != nil {
		return err
	}
	s.ContractID = contract.ID(idBytes)

	if s.CetAdaptorSignatures, err = readAdaptorSignatureSets(r); err != nil {
		return err
	}

	refundSig, err := readECDSASignature(r)
	if err != nil {
		return err
	}
	s.RefundSignature = refundSig

	s.FundingSignatures, err = readWitnessSets(r)
	return err
}
