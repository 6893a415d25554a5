package statemachine

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replkv/internal/domain"
)

type shortWriter struct{ n int }

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		return w.n, nil
	}
	return len(p), nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func save(t *testing.T, sm *KVStateMachine) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, code := sm.SaveSnapshot(&buf, nil, make(chan struct{}))
	require.Equal(t, domain.SnapshotOK, code)
	require.Equal(t, uint64(buf.Len()), n)
	return buf.Bytes()
}

func TestSaveSnapshot_Format(t *testing.T) {
	sm := New(1, 1)
	apply(t, sm, "set y 2", "set x 1", "noop")

	assert.Equal(t, "3\nx 1\ny 2\n", string(save(t, sm)))
}

func TestSaveSnapshot_EmptyStore(t *testing.T) {
	assert.Equal(t, "0\n", string(save(t, New(1, 1))))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	src := New(1, 1)
	apply(t, src, "set x 1", "set y 2", "noop", "noop", "noop", "noop", "noop")
	require.Equal(t, uint64(7), src.GetHash())

	dst := New(1, 2)
	code := dst.RecoverFromSnapshot(bytes.NewReader(save(t, src)), nil, make(chan struct{}))
	require.Equal(t, domain.SnapshotOK, code)

	assert.Equal(t, uint64(7), dst.GetHash())
	assert.Equal(t, "1", lookup(dst, "x"))
	assert.Equal(t, "2", lookup(dst, "y"))
	assert.Equal(t, lookup(src, "display"), lookup(dst, "display"))
}

func TestSnapshot_RoundTripNonASCIISpace(t *testing.T) {
	src := New(1, 1)
	apply(t, src, "set k\u00a0x v\u2003w")

	dst := New(1, 2)
	code := dst.RecoverFromSnapshot(bytes.NewReader(save(t, src)), nil, make(chan struct{}))
	require.Equal(t, domain.SnapshotOK, code)

	assert.Equal(t, "v\u2003w", lookup(dst, "k\u00a0x"))
	assert.Equal(t, lookup(src, "display"), lookup(dst, "display"))
}

func TestSnapshot_RoundTripRandomStates(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 10; round++ {
		src := New(1, 1, WithDigest(DigestContent))
		apply(t, src, randomCommands(r, 300)...)

		data := save(t, src)

		dst := New(1, 2, WithDigest(DigestContent))
		require.Equal(t, domain.SnapshotOK, dst.RecoverFromSnapshot(bytes.NewReader(data), nil, nil))

		assert.Equal(t, src.GetHash(), dst.GetHash())
		assert.Equal(t, data, save(t, dst))
	}
}

func TestSnapshot_RoundTripAcrossManyChunks(t *testing.T) {
	src := New(1, 1)
	var cmds []string
	for i := 0; i < 2000; i++ {
		cmds = append(cmds, "set key"+strings.Repeat("x", i%17)+string(rune('a'+i%26))+" "+strings.Repeat("v", 10))
	}
	apply(t, src, cmds...)
	data := save(t, src)
	require.Greater(t, len(data), readChunkSize)

	dst := New(1, 2)
	code := dst.RecoverFromSnapshot(iotest.OneByteReader(bytes.NewReader(data)), nil, nil)
	require.Equal(t, domain.SnapshotOK, code)
	assert.Equal(t, lookup(src, "display"), lookup(dst, "display"))
}

func TestRecoverFromSnapshot_EmptyStream(t *testing.T) {
	sm := New(1, 1)
	code := sm.RecoverFromSnapshot(bytes.NewReader(nil), nil, make(chan struct{}))

	require.Equal(t, domain.SnapshotOK, code)
	assert.Equal(t, uint64(0), sm.GetHash())
	assert.Equal(t, "{ }", lookup(sm, "display"))
}

func TestRecoverFromSnapshot_DataWithEOF(t *testing.T) {
	sm := New(1, 1)
	code := sm.RecoverFromSnapshot(iotest.DataErrReader(strings.NewReader("2\na b\n")), nil, nil)

	require.Equal(t, domain.SnapshotOK, code)
	assert.Equal(t, "b", lookup(sm, "a"))
}

func TestRecoverFromSnapshot_DanglingKeyIgnored(t *testing.T) {
	sm := New(1, 1)
	code := sm.RecoverFromSnapshot(strings.NewReader("4\na 1\nb"), nil, nil)

	require.Equal(t, domain.SnapshotOK, code)
	assert.Equal(t, `{ "a":"1", }`, lookup(sm, "display"))
	assert.Equal(t, uint64(4), sm.GetHash())
}

func TestRecoverFromSnapshot_Failures(t *testing.T) {
	closed := make(chan struct{})
	close(closed)

	tests := []struct {
		name string
		r    io.Reader
		done <-chan struct{}
	}{
		{name: "read error", r: iotest.ErrReader(errors.New("broken pipe"))},
		{name: "error after data", r: io.MultiReader(strings.NewReader("1\na b\n"), iotest.ErrReader(io.ErrUnexpectedEOF))},
		{name: "stopped", r: strings.NewReader("1\na b\n"), done: closed},
		{name: "bad counter", r: strings.NewReader("abc\na b\n")},
		{name: "negative counter", r: strings.NewReader("-1\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := New(1, 1)
			assert.Equal(t, domain.SnapshotRecoverFailed, sm.RecoverFromSnapshot(tt.r, nil, tt.done))
		})
	}
}

func TestSaveSnapshot_StoppedWritesNothing(t *testing.T) {
	sm := New(1, 1)
	apply(t, sm, "set a 1")

	done := make(chan struct{})
	close(done)

	var buf bytes.Buffer
	n, code := sm.SaveSnapshot(&buf, nil, done)

	assert.Equal(t, domain.SnapshotStopped, code)
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, 0, buf.Len())
}

func TestSaveSnapshot_ShortWrite(t *testing.T) {
	sm := New(1, 1)
	apply(t, sm, "set a 1", "set b 2")

	n, code := sm.SaveSnapshot(&shortWriter{n: 3}, nil, nil)
	assert.Equal(t, domain.SnapshotSaveFailed, code)
	assert.Equal(t, uint64(0), n)
}

func TestSaveSnapshot_WriteError(t *testing.T) {
	sm := New(1, 1)
	apply(t, sm, "set a 1")

	_, code := sm.SaveSnapshot(failingWriter{}, nil, nil)
	assert.Equal(t, domain.SnapshotSaveFailed, code)
}

func TestSaveSnapshot_DoesNotMutate(t *testing.T) {
	sm := New(1, 1)
	apply(t, sm, "set a 1")
	before := sm.GetHash()

	save(t, sm)
	save(t, sm)

	assert.Equal(t, before, sm.GetHash())
	assert.Equal(t, "1", lookup(sm, "a"))
}

func TestRecoverFromSnapshot_NonEmptyInstanceIsReplaced(t *testing.T) {
	sm := New(1, 1)
	apply(t, sm, "set stale 1")

	code := sm.RecoverFromSnapshot(strings.NewReader("9\nfresh 2\n"), nil, nil)
	require.Equal(t, domain.SnapshotOK, code)

	assert.Equal(t, "not found", lookup(sm, "stale"))
	assert.Equal(t, "2", lookup(sm, "fresh"))
	assert.Equal(t, uint64(9), sm.GetHash())
}
