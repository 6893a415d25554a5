package main

import (
	"fmt"
	"log/slog"

	"replkv/internal/configuration/properties"
	"replkv/internal/metrics"
	"replkv/internal/raft"
	"replkv/internal/statemachine"
	"replkv/internal/transport"
)

type Services struct {
	Node      *raft.Node
	Transport *transport.Server
	Metrics   *metrics.Server
}

func NewServices(provider properties.ConfigProvider) (*Services, error) {
	digest, err := statemachine.ParseDigestMode(provider.GetStateMachine().Digest)
	if err != nil {
		return nil, err
	}
	factory := statemachine.NewFactory(statemachine.WithDigest(digest))

	node, err := raft.NewNode(provider.GetRaft(), factory)
	if err != nil {
		return nil, fmt.Errorf("create raft node: %w", err)
	}
	if err := node.Start(); err != nil {
		node.Stop()
		return nil, fmt.Errorf("start raft node: %w", err)
	}

	transportSrv := transport.NewServer(provider.GetTransport(), node)
	if err := transportSrv.Start(); err != nil {
		node.Stop()
		return nil, fmt.Errorf("start transport: %w", err)
	}

	metricsSrv := metrics.NewServer(provider.GetServer().Address, node.Healthy)
	if err := metricsSrv.Start(); err != nil {
		transportSrv.Stop()
		node.Stop()
		return nil, fmt.Errorf("start metrics server: %w", err)
	}

	status := node.Status()
	slog.Info("raft status on startup",
		"id", status.ID,
		"group_id", status.GroupID,
		"term", status.Term,
		"lead", status.Leader,
		"applied", status.Applied,
		"snapshot_index", status.SnapshotIndex,
	)

	return &Services{Node: node, Transport: transportSrv, Metrics: metricsSrv}, nil
}

// Stop drains client RPCs before the node so no request is left waiting on a
// stopped raft loop.
func (s *Services) Stop() {
	s.Transport.Stop()
	s.Node.Stop()
	s.Metrics.Stop()
}
