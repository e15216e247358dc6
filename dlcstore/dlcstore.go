package dlcstore

import "github.com/btcdlc/dlcd/external"

var (
	_ external.Storage = (*MemStore)(nil)
	_ external.Storage = (*BoltStore)(nil)
	_ external.Storage = (*PostgresStore)(nil)
)
