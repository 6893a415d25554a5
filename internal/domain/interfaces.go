package domain

import "io"

// Entry is one committed log entry handed to a state machine. Update stores
// the client-visible acknowledgement in Result.
type Entry struct {
	Index  uint64
	Cmd    []byte
	Result uint64
}

// SnapshotFile is an external file recorded alongside a snapshot stream.
type SnapshotFile struct {
	FileID   uint64
	Filepath string
	Metadata []byte
}

// SnapshotFileCollection collects external files while a snapshot is saved.
type SnapshotFileCollection interface {
	AddFile(fileID uint64, path string, metadata []byte)
}

// StateMachine is the contract between a replicated state machine and the
// runtime driving it. Update, SaveSnapshot and RecoverFromSnapshot are never
// called concurrently with each other; Lookup and GetHash may be.
type StateMachine interface {
	Update(e *Entry)
	Lookup(query []byte) *LookupResult
	FreeLookupResult(r *LookupResult)
	GetHash() uint64
	SaveSnapshot(w io.Writer, files SnapshotFileCollection, done <-chan struct{}) (uint64, SnapshotErrorCode)
	RecoverFromSnapshot(r io.Reader, files []SnapshotFile, done <-chan struct{}) SnapshotErrorCode
	Close() error
}

// Factory creates the state machine for one replica of one group.
type Factory func(groupID, replicaID uint64) StateMachine
