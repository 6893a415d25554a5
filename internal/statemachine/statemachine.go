package statemachine

import (
	"log/slog"

	"replkv/internal/domain"
	"replkv/internal/storage"
)

// KVStateMachine is a deterministic key/value state machine for one replica
// of one replication group. The group and replica IDs only scope logging.
type KVStateMachine struct {
	groupID   uint64
	replicaID uint64

	store  *storage.Store
	digest DigestMode
	log    *slog.Logger
}

type Option func(*KVStateMachine)

// WithDigest selects how GetHash is computed. The default is DigestCount.
func WithDigest(mode DigestMode) Option {
	return func(sm *KVStateMachine) {
		sm.digest = mode
	}
}

func New(groupID, replicaID uint64, opts ...Option) *KVStateMachine {
	sm := &KVStateMachine{
		groupID:   groupID,
		replicaID: replicaID,
		store:     storage.NewStore(),
		digest:    DigestCount,
	}
	for _, opt := range opts {
		opt(sm)
	}

	sm.log = slog.Default().With("group_id", groupID, "replica_id", replicaID)
	sm.log.Debug("state machine created", "digest", sm.digest.String())
	return sm
}

// NewFactory returns a domain.Factory creating state machines with opts.
func NewFactory(opts ...Option) domain.Factory {
	return func(groupID, replicaID uint64) domain.StateMachine {
		return New(groupID, replicaID, opts...)
	}
}

// CreateStateMachine creates a state machine with default options.
func CreateStateMachine(groupID, replicaID uint64) domain.StateMachine {
	return New(groupID, replicaID)
}

func (sm *KVStateMachine) GroupID() uint64   { return sm.groupID }
func (sm *KVStateMachine) ReplicaID() uint64 { return sm.replicaID }

// Len returns the number of keys currently held.
func (sm *KVStateMachine) Len() int {
	return sm.store.Len()
}

func (sm *KVStateMachine) Close() error {
	sm.store.Reset()
	sm.log.Debug("state machine closed")
	return nil
}
