package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"replkv/internal/configuration/properties"
	"replkv/internal/raft"
	"replkv/internal/statemachine"
)

func startRaftNode(t *testing.T) *raft.Node {
	t.Helper()
	n, err := raft.NewNode(&properties.RaftConfigProperties{
		GroupId:        1,
		NodeId:         1,
		StorageBaseDir: t.TempDir(),
		TickInterval:   5,
		Etcd:           properties.EtcdConfigProperties{ElectionTick: 5, HeartbeatTick: 1},
		Wal:            properties.WriteAheadLogProperties{NoSync: true},
	}, statemachine.NewFactory())
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(n.Stop)
	require.Eventually(t, n.IsLeader, 5*time.Second, 10*time.Millisecond)
	return n
}

func TestKV_AgainstRaftNode(t *testing.T) {
	node := startRaftNode(t)
	c := dial(t, node, 5*time.Second)
	ctx := testContext(t)

	for i, cmd := range []string{"set x 1", "set y 2", "del x", "clr", "set z 3"} {
		res, err := c.Propose(ctx, []byte(cmd))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), res)
	}

	out, err := c.Lookup(ctx, []byte("display"))
	require.NoError(t, err)
	assert.Equal(t, `{ "z":"3", }`, string(out))

	out, err = c.Lookup(ctx, []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, "not found", string(out))

	hash, err := c.Hash(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), hash)

	index, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.Storage().SnapshotIndex(), index)
	assert.Positive(t, index)
}

func TestKV_StoppedNodeIsUnavailable(t *testing.T) {
	node := startRaftNode(t)
	c := dial(t, node, time.Second)

	node.Stop()

	_, err := c.Propose(testContext(t), []byte("set a 1"))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
