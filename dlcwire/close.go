package dlcwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/contract"
)

// Close is the cooperative-close message: either party may propose
// settling the funding output directly, without broadcasting a CET,
// splitting accept_payout to the acceptor and the remainder (less fees)
// to the offerer. Spec §6 "Close".
type Close struct {
	ContractID     contract.ID
	CloseSignature ecdsa.Signature
	AcceptPayout   btcutil.Amount
	FeeRatePerVByte int64
	Inputs         []wire.OutPoint
}

func (c *Close) MsgType() MessageType { return MsgClose }

func (c *Close) Encode(w io.Writer) error {
	if err := writeFixed32(w, [32]byte(c.ContractID)); err != nil {
		return err
	}
	if err := writeECDSASignatureVar(w, c.CloseSignature); err != nil {
		return err
	}
	if err := writeInt64(w, int64(c.AcceptPayout)); err != nil {
		return err
	}
	if err := writeInt64(w, c.FeeRatePerVByte); err != nil {
		return err
	}
	if len(c.Inputs) > maxVectorLen {
		return errPayloadTooLarge
	}
	if err := writeUint16(w, uint16(len(c.Inputs))); err != nil {
		return err
	}
	for _, op := range c.Inputs {
		if err := writeOutPoint(w, op); err != nil {
			return err
		}
	}
	return nil
}

func (c *Close) Decode(r io.Reader) error {
	var err error

	idBytes, err := readFixed32(r)
	if err != nil {
		return err
	}
	c.ContractID = contract.ID(idBytes)

	closeSig, err := readECDSASignature(r)
	if err != nil {
		return err
	}
	c.CloseSignature = closeSig

	acceptPayout, err := readInt64(r)
	if err != nil {
		return err
	}
	c.AcceptPayout = btcutil.Amount(acceptPayout)

	if c.FeeRatePerVByte, err = readInt64(r); err != nil {
		return err
	}

	n, err := readUint16(r)
	if err != nil {
		return err
	}
	c.Inputs = make([]wire.OutPoint, n)
	for i := range c.Inputs {
		c.Inputs[i], err = readOutPoint(r)
		if err != nil {
			return err
		}
	}
	return nil
}
