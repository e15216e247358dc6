package txbuilder

// Weight constants for the scripts and witnesses this package deals with,
// following BIP-141 weight = 4*base_size + witness_size. Mirrors the
// constant-naming and derivation style of lnwallet/size.go, adapted from
// commitment-transaction witnesses to the 2-of-2 funding witness a CET,
// refund, or splice-funding transaction spends.
const (
	// p2wshOutputSize is the serialized size of a P2WSH TxOut: 8 (value)
	// + 1 (script length varint) + 34 (version byte + push + 32 byte hash).
	p2wshOutputSize = 8 + 1 + 34

	// multiSigScriptSize is the serialized size of the 2-of-2 redeem
	// script: OP_2, <33 byte pubkey>, <33 byte pubkey>, OP_2,
	// OP_CHECKMULTISIG.
	multiSigScriptSize = 1 + 1 + 33 + 1 + 33 + 1 + 1

	// fundingWitnessWeight is the witness weight of spending the 2-of-2
	// funding output: empty stack item, two DER signatures (up to 72
	// bytes + length prefix each, plus sighash byte), and the redeem
	// script itself, each prefixed by its length.
	fundingWitnessWeight = 1 + 1 + 1 + 73 + 1 + 73 + 1 + multiSigScriptSize

	// baseInputSize is the non-witness size of a transaction input:
	// 32 (prevout hash) + 4 (prevout index) + 1 (empty scriptSig length)
	// + 4 (sequence).
	baseInputSize = 32 + 4 + 1 + 4

	// baseOutputOverhead is the fixed non-value, non-script part of a
	// TxOut: 8 bytes for the value field.
	baseOutputOverhead = 8

	// baseTxOverhead accounts for version (4), segwit marker+flag (2),
	// input count varint (1), output count varint (1), and locktime (4).
	baseTxOverhead = 4 + 2 + 1 + 1 + 4
)

// feeReserveVByte estimates, in virtual bytes, the cost of spending the
// funding output once via a CET or refund transaction: the input itself
// (weighted 1/4 for witness data) plus two standard outputs.
func feeReserveVByte(outputScriptLen1, outputScriptLen2 int) int64 {
	weight := int64(baseInputSize*4) + int64(fundingWitnessWeight)
	weight += int64(baseTxOverhead * 4)
	weight += int64((baseOutputOverhead + 1 + outputScriptLen1) * 4)
	weight += int64((baseOutputOverhead + 1 + outputScriptLen2) * 4)
	// Round up to vbytes (weight / 4), as real fee estimators do.
	return (weight + 3) / 4
}

// FundingFeeReserve computes the number of satoshis that must be added to
// the funding output to cover, at feeRatePerVByte, one CET spend and the
// refund spend (whichever is broadcast consumes the same output, so the
// conservative reserve covers the larger of the two output-script pairs
// seen across all CETs and the refund).
func FundingFeeReserve(feeRatePerVByte int64, offerScriptLen, acceptScriptLen int) int64 {
	vbytes := feeReserveVByte(offerScriptLen, acceptScriptLen)
	return vbytes * feeRatePerVByte
}

// FundingInputWeight estimates the vbyte cost of a single funding input
// given its witness length (0 for a DLC-input 2-of-2 spend uses
// fundingWitnessWeight instead, see DlcInputFeeVBytes).
func FundingInputWeight(witnessLen int) int64 {
	weight := int64(baseInputSize*4) + int64(witnessLen)
	return (weight + 3) / 4
}

// DlcInputFeeVBytes estimates the vbyte cost of spending a prior DLC's
// funding output (a 2-of-2 P2WSH) as an input to a new funding transaction.
func DlcInputFeeVBytes() int64 {
	weight := int64(baseInputSize*4) + int64(fundingWitnessWeight)
	return (weight + 3) / 4
}
