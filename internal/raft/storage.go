package raft

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tidwall/wal"
	"go.etcd.io/etcd/pkg/v3/pbutil"
	etcdraft "go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

type recordType byte

const (
	recordEntry     recordType = 1
	recordHardState recordType = 2
	recordSnapshot  recordType = 3
	recordConfState recordType = 4
)

const walFolder = "wal"

var errBadRecord = errors.New("malformed wal record")

// entryPos maps a raft entry to the WAL slot that holds it.
type entryPos struct {
	raft uint64
	wal  uint64
}

// Storage keeps everything raft needs across restarts in a single tidwall/wal
// log: entries, hard state, conf state and whole snapshots. The log is
// mirrored into an etcd MemoryStorage that the raft node reads from.
type Storage struct {
	mu sync.Mutex

	log *wal.Log
	ms  *etcdraft.MemoryStorage

	hs        raftpb.HardState
	snap      raftpb.Snapshot
	confState raftpb.ConfState

	next uint64
	// ascending by raft index, only entries above the snapshot
	positions []entryPos
}

// OpenStorage opens or creates storage under dir and returns it together with
// the index of the latest durable snapshot. Entries after that index are
// redelivered by raft as committed entries once the node restarts.
func OpenStorage(dir string, noSync bool) (*Storage, uint64, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, 0, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	opts := *wal.DefaultOptions
	opts.NoSync = noSync
	log, err := wal.Open(filepath.Join(dir, walFolder), &opts)
	if err != nil {
		return nil, 0, fmt.Errorf("wal.Open: %w", err)
	}

	s := &Storage{log: log, ms: etcdraft.NewMemoryStorage(), next: 1}
	entries, err := s.readLog()
	if err == nil {
		err = s.rebuild(entries)
	}
	if err != nil {
		_ = log.Close()
		return nil, 0, err
	}
	return s, s.snap.Metadata.Index, nil
}

// readLog decodes every record left in the WAL and returns the surviving
// entries. A rewritten suffix replaces everything from its first index on.
func (s *Storage) readLog() ([]raftpb.Entry, error) {
	empty, err := s.log.IsEmpty()
	if err != nil {
		return nil, fmt.Errorf("wal.IsEmpty: %w", err)
	}
	if empty {
		return nil, nil
	}

	first, err := s.log.FirstIndex()
	if err != nil {
		return nil, fmt.Errorf("wal.FirstIndex: %w", err)
	}
	last, err := s.log.LastIndex()
	if err != nil {
		return nil, fmt.Errorf("wal.LastIndex: %w", err)
	}

	var entries []raftpb.Entry
	for slot := first; slot <= last; slot++ {
		raw, err := s.log.Read(slot)
		if err != nil {
			return nil, fmt.Errorf("wal.Read(%d): %w", slot, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("wal slot %d: %w", slot, errBadRecord)
		}
		payload := raw[1:]

		switch recordType(raw[0]) {
		case recordEntry:
			var e raftpb.Entry
			pbutil.MustUnmarshal(&e, payload)
			cut := sort.Search(len(entries), func(i int) bool { return entries[i].Index >= e.Index })
			entries = append(entries[:cut], e)
			s.positions = append(s.positions[:cut], entryPos{raft: e.Index, wal: slot})
		case recordHardState:
			s.hs = raftpb.HardState{}
			pbutil.MustUnmarshal(&s.hs, payload)
		case recordConfState:
			s.confState = raftpb.ConfState{}
			pbutil.MustUnmarshal(&s.confState, payload)
		case recordSnapshot:
			s.snap = raftpb.Snapshot{}
			pbutil.MustUnmarshal(&s.snap, payload)
			s.confState = s.snap.Metadata.ConfState
		default:
			return nil, fmt.Errorf("wal slot %d type %d: %w", slot, raw[0], errBadRecord)
		}
	}
	s.next = last + 1

	slog.Info("replayed WAL",
		"wal_first", first,
		"wal_last", last,
		"snap_index", s.snap.Metadata.Index,
		"hs_commit", s.hs.Commit,
		"voters", s.confState.Voters,
	)
	return entries, nil
}

// rebuild loads the replayed state into MemoryStorage.
func (s *Storage) rebuild(entries []raftpb.Entry) error {
	snapIndex := s.snap.Metadata.Index
	keep := sort.Search(len(entries), func(i int) bool { return entries[i].Index > snapIndex })
	entries = entries[keep:]
	s.positions = s.positions[keep:]

	if !etcdraft.IsEmptySnap(s.snap) {
		if err := s.ms.ApplySnapshot(s.snap); err != nil {
			return fmt.Errorf("apply snapshot: %w", err)
		}
	}
	if !etcdraft.IsEmptyHardState(s.hs) {
		if err := s.ms.SetHardState(s.hs); err != nil {
			return fmt.Errorf("set hardstate: %w", err)
		}
	}
	if len(entries) > 0 {
		if err := s.ms.Append(entries); err != nil {
			return fmt.Errorf("append entries: %w", err)
		}
	}
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}

// SaveReady persists what raft handed over in rd, in the order raft requires:
// snapshot, entries, then hard state.
func (s *Storage) SaveReady(rd etcdraft.Ready) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !etcdraft.IsEmptySnap(rd.Snapshot) {
		if err := s.saveSnapshotLocked(rd.Snapshot); err != nil {
			return err
		}
		if err := s.ms.ApplySnapshot(rd.Snapshot); err != nil && !errors.Is(err, etcdraft.ErrSnapOutOfDate) {
			return fmt.Errorf("MemoryStorage.ApplySnapshot: %w", err)
		}
	}

	if len(rd.Entries) > 0 {
		cut := sort.Search(len(s.positions), func(i int) bool { return s.positions[i].raft >= rd.Entries[0].Index })
		s.positions = s.positions[:cut]
		for i := range rd.Entries {
			slot, err := s.writeLocked(recordEntry, &rd.Entries[i])
			if err != nil {
				return err
			}
			s.positions = append(s.positions, entryPos{raft: rd.Entries[i].Index, wal: slot})
		}
		if err := s.ms.Append(rd.Entries); err != nil {
			return fmt.Errorf("MemoryStorage.Append: %w", err)
		}
	}

	if !etcdraft.IsEmptyHardState(rd.HardState) && rd.HardState != s.hs {
		if _, err := s.writeLocked(recordHardState, &rd.HardState); err != nil {
			return err
		}
		if err := s.ms.SetHardState(rd.HardState); err != nil {
			return fmt.Errorf("MemoryStorage.SetHardState: %w", err)
		}
		s.hs = rd.HardState
	}

	if rd.MustSync {
		return s.syncLocked()
	}
	return nil
}

func (s *Storage) SaveConfState(cs raftpb.ConfState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writeLocked(recordConfState, &cs); err != nil {
		return err
	}
	if err := s.syncLocked(); err != nil {
		return err
	}
	s.confState = cs
	return nil
}

// CreateSnapshot records data as the snapshot at index in MemoryStorage.
func (s *Storage) CreateSnapshot(index uint64, cs *raftpb.ConfState, data []byte) (raftpb.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ms.CreateSnapshot(index, cs, data)
}

// SaveSnapshot appends snap, payload included, to the WAL and syncs it.
func (s *Storage) SaveSnapshot(snap raftpb.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSnapshotLocked(snap)
}

func (s *Storage) saveSnapshotLocked(snap raftpb.Snapshot) error {
	if _, err := s.writeLocked(recordSnapshot, &snap); err != nil {
		return err
	}
	if err := s.syncLocked(); err != nil {
		return err
	}

	s.snap = snap
	s.confState = snap.Metadata.ConfState

	slog.Info("saved snapshot",
		"index", snap.Metadata.Index,
		"term", snap.Metadata.Term,
		"size", len(snap.Data),
	)
	return nil
}

// Compact drops raft entries up to compactIndex from memory and truncates the
// WAL in front of the last of them. Snapshot records written before that
// entry go with it; the current one was written after and survives.
func (s *Storage) Compact(compactIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ms.Compact(compactIndex); err != nil && !errors.Is(err, etcdraft.ErrCompacted) {
		return fmt.Errorf("MemoryStorage.Compact: %w", err)
	}

	n := sort.Search(len(s.positions), func(i int) bool { return s.positions[i].raft > compactIndex })
	if n == 0 {
		return nil
	}
	slot := s.positions[n-1].wal
	if err := s.log.TruncateFront(slot); err != nil {
		return fmt.Errorf("wal.TruncateFront(%d): %w", slot, err)
	}
	s.positions = s.positions[n:]
	return nil
}

func (s *Storage) RaftStorage() *etcdraft.MemoryStorage {
	return s.ms
}

func (s *Storage) Snapshot() raftpb.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Storage) SnapshotIndex() uint64 {
	return s.Snapshot().Metadata.Index
}

func (s *Storage) ConfState() raftpb.ConfState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confState
}

// IsEmpty reports whether nothing was ever persisted, i.e. the node must be
// bootstrapped rather than restarted. Truncation never empties the WAL.
func (s *Storage) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next == 1
}

func (s *Storage) writeLocked(typ recordType, msg interface{ Marshal() ([]byte, error) }) (uint64, error) {
	payload, err := msg.Marshal()
	if err != nil {
		return 0, fmt.Errorf("marshal %d record: %w", typ, err)
	}
	slot := s.next
	if err := s.log.Write(slot, append([]byte{byte(typ)}, payload...)); err != nil {
		return 0, fmt.Errorf("wal.Write(%d): %w", slot, err)
	}
	s.next++
	return slot, nil
}

func (s *Storage) syncLocked() error {
	if err := s.log.Sync(); err != nil {
		return fmt.Errorf("wal.Sync: %w", err)
	}
	return nil
}
