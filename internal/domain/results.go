package domain

type SnapshotErrorCode int

const (
	SnapshotOK SnapshotErrorCode = iota
	SnapshotStopped
	SnapshotSaveFailed
	SnapshotRecoverFailed
)

func (c SnapshotErrorCode) String() string {
	switch c {
	case SnapshotOK:
		return "ok"
	case SnapshotStopped:
		return "stopped"
	case SnapshotSaveFailed:
		return "save_failed"
	case SnapshotRecoverFailed:
		return "recover_failed"
	default:
		return "unknown"
	}
}

// LookupResult owns the bytes returned by a lookup. The caller must hand it
// back through StateMachine.FreeLookupResult (or Release) once done with Data.
type LookupResult struct {
	Data    []byte
	release func()
}

func NewLookupResult(data []byte, release func()) *LookupResult {
	return &LookupResult{Data: data, release: release}
}

// Release returns the underlying buffer. Data must not be used afterwards.
// Releasing twice is a no-op.
func (r *LookupResult) Release() {
	if r == nil {
		return
	}
	if r.release != nil {
		r.release()
		r.release = nil
	}
	r.Data = nil
}
