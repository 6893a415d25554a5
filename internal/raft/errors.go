package raft

import "errors"

var (
	ErrNotLeader = errors.New("not leader")

	ErrShuttingDown = errors.New("shutting down")

	ErrSnapshotFailed = errors.New("state machine snapshot failed")

	ErrRecoverFailed = errors.New("state machine recovery failed")
)
