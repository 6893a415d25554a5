package statemachine

import (
	"replkv/internal/domain"
	"replkv/internal/metrics"
	"replkv/internal/storage"
)

// Update applies one committed entry and stores the post-increment update
// counter in e.Result. It never fails; unrecognized commands only move the
// counter.
func (sm *KVStateMachine) Update(e *domain.Entry) {
	cmd := DecodeCommand(e.Cmd)

	count := sm.store.Update(func(tx *storage.Tx) {
		switch cmd.Kind {
		case CommandSet:
			tx.Set(cmd.Key, cmd.Value)
		case CommandDelete:
			tx.Delete(cmd.Key)
		case CommandClear:
			tx.Clear()
		}
	})
	e.Result = count

	metrics.UpdatesTotal.WithLabelValues(cmd.Kind.String()).Inc()
	metrics.UpdateCount.Set(float64(count))
	metrics.KeysTotal.Set(float64(sm.store.Len()))

	sm.log.Debug("applied entry",
		"index", e.Index,
		"command", cmd.Kind.String(),
		"update_count", count,
	)
}
