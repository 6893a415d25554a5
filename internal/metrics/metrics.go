package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "statemachine",
		Name:      "updates_total",
		Help:      "Total committed entries applied, by decoded command",
	}, []string{"command"})

	LookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "statemachine",
		Name:      "lookups_total",
		Help:      "Total lookups served, by query kind and outcome",
	}, []string{"kind", "result"})

	KeysTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "statemachine",
		Name:      "keys_total",
		Help:      "Number of keys held by the state machine",
	})

	UpdateCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "statemachine",
		Name:      "update_count",
		Help:      "Update counter of the state machine",
	})

	SnapshotSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "snapshot",
		Name:      "saves_total",
		Help:      "Snapshot saves, by status",
	}, []string{"status"})

	SnapshotRecoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "snapshot",
		Name:      "recovers_total",
		Help:      "Snapshot recoveries, by status",
	}, []string{"status"})

	SnapshotSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "snapshot",
		Name:      "size_bytes",
		Help:      "Size of last saved snapshot in bytes",
	})

	SnapshotDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "replkv",
		Subsystem: "snapshot",
		Name:      "duration_seconds",
		Help:      "Time to save or recover a snapshot",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18),
	}, []string{"op"})

	RaftIsLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "is_leader",
		Help:      "Whether this replica is the Raft leader (1=leader, 0=follower)",
	})

	RaftTerm = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "term",
		Help:      "Current Raft term",
	})

	RaftCommitIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "commit_index",
		Help:      "Current Raft commit index",
	})

	RaftAppliedIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "applied_index",
		Help:      "Last applied Raft index",
	})

	RaftSnapshotIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "snapshot_index",
		Help:      "Last snapshot index",
	})

	RaftProposalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "proposals_total",
		Help:      "Total proposals submitted",
	})

	RaftProposalsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "proposals_failed_total",
		Help:      "Total failed proposals",
	})

	ProposalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "proposal_duration_seconds",
		Help:      "Time from propose to applied result",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
	})

	ReadIndexTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "read_index_total",
		Help:      "Total read index requests",
	}, []string{"status"})

	ReadIndexDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replkv",
		Subsystem: "raft",
		Name:      "read_index_duration_seconds",
		Help:      "Read index request duration",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
	})

	WALWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "replkv",
		Subsystem: "wal",
		Name:      "writes_total",
		Help:      "Total WAL entry writes",
	})

	WALWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replkv",
		Subsystem: "wal",
		Name:      "write_duration_seconds",
		Help:      "WAL write duration",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
	})
)
