package dlctest

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcdlc/dlcd/dlcerr"
)

// Blockchain is an in-memory external.Blockchain: SendTransaction records
// whatever is broadcast and SetConfirmations lets a test script a
// transaction's depth directly, instead of mining blocks.
type Blockchain struct {
	mu            sync.Mutex
	Sent          []*wire.MsgTx
	confirmations map[chainhash.Hash]uint32
	height        uint32
}

// NewBlockchain returns an empty Blockchain double.
func NewBlockchain() *Blockchain {
	return &Blockchain{confirmations: make(map[chainhash.Hash]uint32)}
}

func (b *Blockchain) Network() *chaincfg.Params { return &chaincfg.RegressionNetParams }

func (b *Blockchain) BlockchainHeight(ctx context.Context) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.height, nil
}

func (b *Blockchain) BlockAtHeight(ctx context.Context, height uint32) (*wire.MsgBlock, error) {
	return nil, dlcerr.New(dlcerr.NotFound, "block at height %d not available in test double", height)
}

func (b *Blockchain) Transaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.Sent {
		if tx.TxHash() == txid {
			return tx, nil
		}
	}
	return nil, dlcerr.New(dlcerr.NotFound, "transaction %v not broadcast", txid)
}

func (b *Blockchain) TransactionConfirmations(ctx context.Context, txid chainhash.Hash) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirmations[txid], nil
}

func (b *Blockchain) SendTransaction(ctx context.Context, tx *wire.MsgTx) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, tx)
	return nil
}

// SetConfirmations scripts the confirmation depth TransactionConfirmations
// reports for txid.
func (b *Blockchain) SetConfirmations(txid chainhash.Hash, confs uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[txid] = confs
}

// Time is a manually-advanced external.Time.
type Time struct {
	mu  sync.Mutex
	now uint64
}

// NewTime returns a Time double starting at now.
func NewTime(now uint64) *Time {
	return &Time{now: now}
}

func (t *Time) UnixTimeNow() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Advance moves the clock forward by delta seconds.
func (t *Time) Advance(delta uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now += delta
}
