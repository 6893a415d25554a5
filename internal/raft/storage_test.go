package raft

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/wal"
	etcdraft "go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

func entries(term uint64, from, to uint64) []raftpb.Entry {
	var out []raftpb.Entry
	for i := from; i <= to; i++ {
		out = append(out, raftpb.Entry{Term: term, Index: i, Data: encodeProposal(i, []byte("set k v"))})
	}
	return out
}

func hardState(t *testing.T, s *Storage) raftpb.HardState {
	t.Helper()
	hs, _, err := s.RaftStorage().InitialState()
	require.NoError(t, err)
	return hs
}

func TestOpenStorage_Empty(t *testing.T) {
	s, applied, err := OpenStorage(t.TempDir(), true)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(0), applied)
	assert.True(t, s.IsEmpty())
}

func TestStorage_ReplayEntriesAndHardState(t *testing.T) {
	dir := t.TempDir()

	s, _, err := OpenStorage(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.SaveReady(etcdraft.Ready{
		Entries:   entries(1, 1, 5),
		HardState: raftpb.HardState{Term: 1, Vote: 1, Commit: 4},
		MustSync:  true,
	}))
	require.NoError(t, s.SaveConfState(raftpb.ConfState{Voters: []uint64{1}}))
	require.NoError(t, s.Close())

	s, applied, err := OpenStorage(dir, true)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(0), applied)
	assert.Equal(t, uint64(4), hardState(t, s).Commit)
	assert.Equal(t, []uint64{1}, s.ConfState().Voters)

	last, err := s.RaftStorage().LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	assert.False(t, s.IsEmpty())
}

func TestStorage_RewrittenSuffixReplacesEntries(t *testing.T) {
	dir := t.TempDir()

	s, _, err := OpenStorage(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.SaveReady(etcdraft.Ready{Entries: entries(1, 1, 5)}))
	require.NoError(t, s.Close())

	// reopen so the conflicting suffix is only resolved by replay
	s, _, err = OpenStorage(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.SaveReady(etcdraft.Ready{Entries: entries(2, 4, 4)}))
	require.NoError(t, s.Close())

	s, _, err = OpenStorage(dir, true)
	require.NoError(t, err)
	defer s.Close()

	last, err := s.RaftStorage().LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), last)

	term, err := s.RaftStorage().Term(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), term)
}

func TestStorage_SnapshotCompactAndReplay(t *testing.T) {
	dir := t.TempDir()

	s, _, err := OpenStorage(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.SaveReady(etcdraft.Ready{
		Entries:   entries(1, 1, 10),
		HardState: raftpb.HardState{Term: 1, Vote: 1, Commit: 10},
	}))

	cs := raftpb.ConfState{Voters: []uint64{1}}
	snap, err := s.CreateSnapshot(6, &cs, []byte("6\na 1\n"))
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(snap))
	require.NoError(t, s.Compact(6))

	first, err := s.RaftStorage().FirstIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), first)
	require.NoError(t, s.Close())

	s, applied, err := OpenStorage(dir, true)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(6), applied)
	assert.Equal(t, uint64(6), s.SnapshotIndex())
	assert.Equal(t, []byte("6\na 1\n"), s.Snapshot().Data)
	assert.Equal(t, []uint64{1}, s.ConfState().Voters)
	assert.Equal(t, uint64(10), hardState(t, s).Commit)

	last, err := s.RaftStorage().LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)
	assert.False(t, s.IsEmpty())
}

func TestStorage_LatestSnapshotWinsAfterCompaction(t *testing.T) {
	dir := t.TempDir()

	s, _, err := OpenStorage(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.SaveReady(etcdraft.Ready{
		Entries:   entries(1, 1, 10),
		HardState: raftpb.HardState{Term: 1, Vote: 1, Commit: 10},
	}))

	cs := raftpb.ConfState{Voters: []uint64{1}}
	for _, idx := range []uint64{3, 8} {
		snap, err := s.CreateSnapshot(idx, &cs, []byte(fmt.Sprintf("%d\n", idx)))
		require.NoError(t, err)
		require.NoError(t, s.SaveSnapshot(snap))
		require.NoError(t, s.Compact(idx))
	}
	// nothing left below the snapshot to cut
	require.NoError(t, s.Compact(8))
	require.NoError(t, s.Close())

	s, applied, err := OpenStorage(dir, true)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(8), applied)
	assert.Equal(t, []byte("8\n"), s.Snapshot().Data)

	first, err := s.RaftStorage().FirstIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), first)
	assert.Equal(t, uint64(10), hardState(t, s).Commit)
}

func TestStorage_EntriesAfterSnapshotSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	s, _, err := OpenStorage(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.SaveReady(etcdraft.Ready{Entries: entries(1, 1, 4)}))
	cs := raftpb.ConfState{Voters: []uint64{1}}
	snap, err := s.CreateSnapshot(2, &cs, []byte("2\n"))
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(snap))
	require.NoError(t, s.Compact(2))
	require.NoError(t, s.SaveReady(etcdraft.Ready{Entries: entries(1, 5, 6)}))
	require.NoError(t, s.Close())

	s, applied, err := OpenStorage(dir, true)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(2), applied)
	ents, err := s.RaftStorage().Entries(3, 7, math.MaxUint64)
	require.NoError(t, err)
	require.Len(t, ents, 4)
	assert.Equal(t, uint64(6), ents[3].Index)
}

func TestOpenStorage_RejectsUnknownRecord(t *testing.T) {
	dir := t.TempDir()

	log, err := wal.Open(filepath.Join(dir, walFolder), nil)
	require.NoError(t, err)
	require.NoError(t, log.Write(1, []byte{9, 1, 2}))
	require.NoError(t, log.Close())

	_, _, err = OpenStorage(dir, true)
	assert.ErrorIs(t, err, errBadRecord)
}

func TestProposalEnvelope(t *testing.T) {
	id, cmd, err := decodeProposal(encodeProposal(42, []byte("set a 1")))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, []byte("set a 1"), cmd)

	id, cmd, err = decodeProposal(encodeProposal(7, nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
	assert.Empty(t, cmd)

	_, _, err = decodeProposal([]byte{1, 2, 3})
	assert.Error(t, err)
}
