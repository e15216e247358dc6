package dlcstore

// Package dlcstore implements external.Storage. MemStore is the
// in-memory backend used by tests and by the reconciliation loop's own
// test suite; it round-trips every contract through EncodeContract/
// DecodeContract on each call so a caller mutating a contract object
// after CreateContract/UpdateContract cannot corrupt the stored copy —
// the same isolation a real row-oriented backend gives for free.
// Grounded on original_source/ddk/src/storage/memory.rs's MemoryStorage
// (a RwLock-guarded HashMap<ContractId, Contract> with one method per
// Storage trait function).

import (
	"bytes"
	"context"
	"sync"

	"github.com/btcdlc/dlcd/contract"
	"github.com/btcdlc/dlcd/dlcerr"
)

// MemStore is a concurrency-safe, non-persistent external.Storage
// implementation.
type MemStore struct {
	mu        sync.RWMutex
	contracts map[contract.ID][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{contracts: make(map[contract.ID][]byte)}
}

func encodeRow(c *contract.Contract) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeContract(&buf, c); err != nil {
		return nil, dlcerr.Wrap(dlcerr.StorageError, err, "unable to encode contract")
	}
	return buf.Bytes(), nil
}

func decodeRow(raw []byte) (*contract.Contract, error) {
	c, err := DecodeContract(bytes.NewReader(raw))
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.StorageError, err, "unable to decode contract")
	}
	return c, nil
}

// CreateContract persists a freshly offered contract under its temporary id.
func (m *MemStore) CreateContract(_ context.Context, offered *contract.OfferedContract) error {
	row, err := encodeRow(&contract.Contract{Stage: contract.StageOffered, Offered: offered})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.contracts[offered.ID]; exists {
		return dlcerr.New(dlcerr.InvalidState, "contract %x already exists", offered.ID)
	}
	m.contracts[offered.ID] = row
	return nil
}

// UpdateContract persists c under its current id, atomically removing the
// row at priorID (if any) in the same locked section — the
// temporary-to-final id promotion when an Offered contract becomes
// Accepted or Signed, spec §3.
func (m *MemStore) UpdateContract(_ context.Context, c *contract.Contract, priorID *contract.ID) error {
	row, err := encodeRow(c)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if priorID != nil {
		delete(m.contracts, *priorID)
	}
	m.contracts[c.GetID()] = row
	return nil
}

// DeleteContract removes a contract's row entirely.
func (m *MemStore) DeleteContract(_ context.Context, id contract.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contracts, id)
	return nil
}

// GetContract fetches a contract by its current id.
func (m *MemStore) GetContract(_ context.Context, id contract.ID) (*contract.Contract, error) {
	m.mu.RLock()
	row, ok := m.contracts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, dlcerr.New(dlcerr.NotFound, "no contract with id %x", id)
	}
	return decodeRow(row)
}

// all decodes every stored row, for the stage-filtered accessors below.
func (m *MemStore) all() ([]*contract.Contract, error) {
	m.mu.RLock()
	rows := make([][]byte, 0, len(m.contracts))
	for _, row := range m.contracts {
		rows = append(rows, row)
	}
	m.mu.RUnlock()

	out := make([]*contract.Contract, 0, len(rows))
	for _, row := range rows {
		c, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func filterStage(cs []*contract.Contract, stages ...contract.Stage) []*contract.Contract {
	out := make([]*contract.Contract, 0, len(cs))
	for _, c := range cs {
		for _, s := range stages {
			if c.Stage == s {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// GetContractOffers returns every contract still in the Offered stage.
func (m *MemStore) GetContractOffers(_ context.Context) ([]*contract.Contract, error) {
	all, err := m.all()
	if err != nil {
		return nil, err
	}
	return filterStage(all, contract.StageOffered), nil
}

// GetSignedContracts returns every Signed (not yet confirmed) contract,
// the set the reconciliation loop polls for funding confirmations.
func (m *MemStore) GetSignedContracts(_ context.Context) ([]*contract.Contract, error) {
	all, err := m.all()
	if err != nil {
		return nil, err
	}
	return filterStage(all, contract.StageSigned), nil
}

// GetConfirmedContracts returns every Confirmed contract, the set the
// reconciliation loop polls for oracle attestations and refund maturity.
func (m *MemStore) GetConfirmedContracts(_ context.Context) ([]*contract.Contract, error) {
	all, err := m.all()
	if err != nil {
		return nil, err
	}
	return filterStage(all, contract.StageConfirmed), nil
}

// GetPreClosedContracts returns every PreClosed contract, the set the
// reconciliation loop polls for CET confirmation depth.
func (m *MemStore) GetPreClosedContracts(_ context.Context) ([]*contract.Contract, error) {
	all, err := m.all()
	if err != nil {
		return nil, err
	}
	return filterStage(all, contract.StagePreClosed), nil
}
