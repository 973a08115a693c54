package jobs

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sentinel-labs/network-behavior-engine/internal/analyzer"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// Batch Analysis Runner
//
// Processes a queue of edge-list snapshots in the background, running the
// full cluster analysis pipeline over each and reporting atomic progress to
// the API. One failing snapshot is logged and skipped; the batch continues.
// Only one batch runs at a time — duplicate requests are ignored while a
// batch is in flight.

// Snapshot is one scoped transaction-network extract queued for analysis.
type Snapshot struct {
	SnapshotID    string                   `json:"snapshotId"`
	CenterAddress string                   `json:"centerAddress,omitempty"`
	MaxDepth      int                      `json:"maxDepth,omitempty"`
	Edges         []models.TransactionEdge `json:"edges"`
}

// Progress is the runner's current state for the API.
type Progress struct {
	IsRunning          bool  `json:"isRunning"`
	SnapshotsProcessed int64 `json:"snapshotsProcessed"`
	SnapshotsTotal     int64 `json:"snapshotsTotal"`
	ClustersFound      int64 `json:"clustersFound"`
	SuspiciousClusters int64 `json:"suspiciousClusters"`
}

// ResultSink receives each completed analysis (e.g. for persistence).
type ResultSink func(ctx context.Context, runID string, snapshot Snapshot, result models.NetworkAnalysisResult)

// Runner executes analysis batches asynchronously.
type Runner struct {
	cfg  analyzer.Config
	sink ResultSink

	isRunning  atomic.Bool
	processed  atomic.Int64
	total      atomic.Int64
	clusters   atomic.Int64
	suspicious atomic.Int64
}

// NewRunner creates a batch runner. sink may be nil.
func NewRunner(cfg analyzer.Config, sink ResultSink) *Runner {
	return &Runner{cfg: cfg, sink: sink}
}

// GetProgress returns the current batch progress (safe for concurrent reads).
func (r *Runner) GetProgress() Progress {
	return Progress{
		IsRunning:          r.isRunning.Load(),
		SnapshotsProcessed: r.processed.Load(),
		SnapshotsTotal:     r.total.Load(),
		ClustersFound:      r.clusters.Load(),
		SuspiciousClusters: r.suspicious.Load(),
	}
}

// RunBatch analyzes the given snapshots asynchronously.
// Returns false if a batch is already in progress.
func (r *Runner) RunBatch(ctx context.Context, snapshots []Snapshot) bool {
	if !r.isRunning.CompareAndSwap(false, true) {
		log.Println("[BatchRunner] Batch already in progress, ignoring duplicate request")
		return false
	}

	r.processed.Store(0)
	r.total.Store(int64(len(snapshots)))
	r.clusters.Store(0)
	r.suspicious.Store(0)

	go func() {
		defer r.isRunning.Store(false)

		log.Printf("[BatchRunner] Starting batch: %d snapshots", len(snapshots))

		for _, snapshot := range snapshots {
			select {
			case <-ctx.Done():
				log.Printf("[BatchRunner] Batch cancelled after %d snapshots", r.processed.Load())
				return
			default:
			}

			r.analyzeSnapshot(ctx, snapshot)
			r.processed.Add(1)
		}

		log.Printf("[BatchRunner] Batch complete: %d snapshots, %d clusters (%d suspicious)",
			r.processed.Load(), r.clusters.Load(), r.suspicious.Load())
	}()
	return true
}

func (r *Runner) analyzeSnapshot(ctx context.Context, snapshot Snapshot) {
	result, err := analyzer.AnalyzeNetwork(snapshot.Edges, r.cfg)
	if err != nil {
		log.Printf("[BatchRunner] Snapshot %s failed: %v", snapshot.SnapshotID, err)
		return
	}

	r.clusters.Add(int64(result.Overview.ClusterCount))
	r.suspicious.Add(int64(result.Overview.SuspiciousClusterCount))

	if r.sink != nil {
		r.sink(ctx, uuid.NewString(), snapshot, result)
	}
}
