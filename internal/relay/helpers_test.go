package relay

import (
	"context"
	"sync/atomic"

	"coderelay/internal/storage"
)

// countingStore counts saves per namespace on top of an in-memory store.
type countingStore struct {
	*storage.Memory
	codeSaves atomic.Int64
	subSaves  atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: storage.NewMemory()}
}

func (c *countingStore) Save(ctx context.Context, ns storage.Namespace, payload []byte) error {
	err := c.Memory.Save(ctx, ns, payload)
	if err == nil {
		switch ns {
		case storage.NamespaceCodes:
			c.codeSaves.Add(1)
		case storage.NamespaceSubscribers:
			c.subSaves.Add(1)
		}
	}
	return err
}
