package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"replkv/internal/configuration/properties"
	"replkv/internal/domain"
	"replkv/internal/raft"
	"replkv/internal/statemachine"
)

// fakeNode applies commands straight to a state machine.
type fakeNode struct {
	sm    domain.StateMachine
	index uint64
	err   error
	block bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{sm: statemachine.CreateStateMachine(1, 1)}
}

func (f *fakeNode) wait(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeNode) Propose(ctx context.Context, cmd []byte) (uint64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	f.index++
	e := &domain.Entry{Index: f.index, Cmd: cmd}
	f.sm.Update(e)
	return e.Result, nil
}

func (f *fakeNode) Lookup(ctx context.Context, query []byte) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	res := f.sm.Lookup(query)
	defer f.sm.FreeLookupResult(res)
	return append([]byte(nil), res.Data...), nil
}

func (f *fakeNode) Hash() uint64 { return f.sm.GetHash() }

func (f *fakeNode) TriggerSnapshot(ctx context.Context) (uint64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return f.index, nil
}

// dial serves node on an in-memory listener and returns a connected client.
func dial(t *testing.T, node Node, timeout time.Duration) *Client {
	t.Helper()

	srv := NewServer(&properties.TransportConfigProperties{
		RequestTimeout: uint64(timeout.Milliseconds()),
	}, node)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.GRPCServer.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestKV_ProposeLookupHash(t *testing.T) {
	c := dial(t, newFakeNode(), time.Second)
	ctx := testContext(t)

	res, err := c.Propose(ctx, []byte("set a 1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res)

	res, err = c.Propose(ctx, []byte("set b 2"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res)

	out, err := c.Lookup(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(out))

	out, err = c.Lookup(ctx, []byte("display"))
	require.NoError(t, err)
	assert.Equal(t, `{ "a":"1", "b":"2", }`, string(out))

	out, err = c.Lookup(ctx, []byte("missing"))
	require.NoError(t, err)
	assert.Equal(t, "not found", string(out))

	hash, err := c.Hash(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), hash)

	index, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), index)
}

func TestKV_EmptyCommandRejected(t *testing.T) {
	node := newFakeNode()
	c := dial(t, node, time.Second)

	_, err := c.Propose(testContext(t), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, uint64(0), node.Hash())
}

func TestKV_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "not leader", err: raft.ErrNotLeader, want: codes.Unavailable},
		{name: "shutting down", err: raft.ErrShuttingDown, want: codes.Unavailable},
		{name: "wrapped not leader", err: fmt.Errorf("propose: %w", raft.ErrNotLeader), want: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "snapshot failed", err: raft.ErrSnapshotFailed, want: codes.Internal},
		{name: "other", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode()
			node.err = tt.err
			c := dial(t, node, time.Second)
			ctx := testContext(t)

			_, err := c.Propose(ctx, []byte("set a 1"))
			assert.Equal(t, tt.want, status.Code(err))

			_, err = c.Lookup(ctx, []byte("a"))
			assert.Equal(t, tt.want, status.Code(err))

			_, err = c.Snapshot(ctx)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestKV_ServerTimeout(t *testing.T) {
	node := newFakeNode()
	node.block = true
	c := dial(t, node, 20*time.Millisecond)

	_, err := c.Propose(testContext(t), []byte("set a 1"))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer(&properties.TransportConfigProperties{
		Network:        "tcp",
		Address:        "127.0.0.1:0",
		RequestTimeout: 1000,
	}, newFakeNode())
	require.NoError(t, srv.Start())
	assert.NotEmpty(t, srv.Addr())
	srv.Stop()
}
