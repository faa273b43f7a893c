package message

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/id"
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
)

// Cache is the optional write-through hook a host may install on a Store.
// Failures must never fail the primary in-memory operation — Store only
// logs them.
type Cache interface {
	StoreAsync(ctx context.Context, msg Message) error
	LoadAsync(ctx context.Context, msgID id.ID) (Message, bool, error)
}

// Store is a key/value store from Identifier to Message.
type Store interface {
	Put(msg Message) error
	Get(msgID id.ID) (Message, error)
	Exists(msgID id.ID) bool
}

// InMemoryStore is the kernel's only Store implementation: the kernel makes
// no durability promises of its own; persistence is an optional
// write-through hook, not a guarantee.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[id.ID]Message
	cache Cache
}

// NewInMemoryStore constructs an empty store, optionally wired to a
// write-through Cache.
func NewInMemoryStore(cache Cache) *InMemoryStore {
	return &InMemoryStore{
		items: make(map[id.ID]Message),
		cache: cache,
	}
}

// Put inserts msg. If msg.ID already exists, the existing entry is
// overwritten — this is the caller's explicit responsibility (re-parenting
// during Fork) and must never carry different content under the same
// Identifier. A mismatch would be a bug in the caller, not the store, so
// Put only logs a warning rather than rejecting the write.
func (s *InMemoryStore) Put(msg Message) error {
	if msg.ID.IsNil() {
		return kernelerr.New(kernelerr.Validation, "InMemoryStore.Put", "message has a nil Identifier")
	}

	s.mu.Lock()
	if existing, ok := s.items[msg.ID]; ok && existing.TextContent() != msg.TextContent() {
		slog.Warn("message store: overwrite changed content for existing identifier",
			"id", msg.ID.String())
	}
	s.items[msg.ID] = msg
	s.mu.Unlock()

	if s.cache != nil {
		go func() {
			if err := s.cache.StoreAsync(context.Background(), msg); err != nil {
				slog.Warn("message store: write-through cache failed", "id", msg.ID.String(), "error", err)
			}
		}()
	}
	return nil
}

// Get retrieves a Message by Identifier.
func (s *InMemoryStore) Get(msgID id.ID) (Message, error) {
	s.mu.RLock()
	msg, ok := s.items[msgID]
	s.mu.RUnlock()
	if ok {
		return msg, nil
	}
	return Message{}, kernelerr.New(kernelerr.NotFound, "InMemoryStore.Get", "no message with id "+msgID.String())
}

// Exists reports whether msgID is present.
func (s *InMemoryStore) Exists(msgID id.ID) bool {
	s.mu.RLock()
	_, ok := s.items[msgID]
	s.mu.RUnlock()
	return ok
}
