package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	transcriptionsSubmittedTotal atomic.Uint64
	transcriptionsCompletedTotal atomic.Uint64
	transcriptionsFailedTotal    atomic.Uint64

	pipelineStepsCompletedTotal atomic.Uint64
	pipelineStepsFailedTotal    atomic.Uint64
	pipelineRunsCompletedTotal  atomic.Uint64
	pipelineRunsFailedTotal     atomic.Uint64

	workerTasksReceivedTotal atomic.Uint64
	workerTasksFailedTotal   atomic.Uint64
	workerTasksDroppedTotal  atomic.Uint64

	staleJobsReclaimedTotal atomic.Uint64

	stepDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncTranscriptionSubmitted increments the submitted transcription counter.
func IncTranscriptionSubmitted() { transcriptionsSubmittedTotal.Add(1) }

// IncTranscriptionCompleted increments the completed transcription counter.
func IncTranscriptionCompleted() { transcriptionsCompletedTotal.Add(1) }

// IncTranscriptionFailed increments the failed transcription counter.
func IncTranscriptionFailed() { transcriptionsFailedTotal.Add(1) }

// IncStepCompleted increments the completed pipeline step counter.
func IncStepCompleted() { pipelineStepsCompletedTotal.Add(1) }

// IncStepFailed increments the failed pipeline step counter.
func IncStepFailed() { pipelineStepsFailedTotal.Add(1) }

// IncRunCompleted increments the completed pipeline run counter.
func IncRunCompleted() { pipelineRunsCompletedTotal.Add(1) }

// IncRunFailed increments the failed pipeline run counter.
func IncRunFailed() { pipelineRunsFailedTotal.Add(1) }

// IncWorkerTaskReceived increments the received worker task counter.
func IncWorkerTaskReceived() { workerTasksReceivedTotal.Add(1) }

// IncWorkerTaskFailed increments the failed worker task counter.
func IncWorkerTaskFailed() { workerTasksFailedTotal.Add(1) }

// IncWorkerTaskDropped increments the counter of tasks dropped after exhausting retries.
func IncWorkerTaskDropped() { workerTasksDroppedTotal.Add(1) }

// IncStaleJobReclaimed increments the stale-job sweep counter.
func IncStaleJobReclaimed() { staleJobsReclaimedTotal.Add(1) }

// ObserveStepDurationMs records a pipeline step duration in milliseconds.
func ObserveStepDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	stepDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "transcriptions_submitted_total", "Total transcription jobs submitted", transcriptionsSubmittedTotal.Load())
	writeCounter(&buf, "transcriptions_completed_total", "Total transcription jobs completed", transcriptionsCompletedTotal.Load())
	writeCounter(&buf, "transcriptions_failed_total", "Total transcription jobs failed", transcriptionsFailedTotal.Load())
	writeCounter(&buf, "pipeline_steps_completed_total", "Total pipeline steps completed", pipelineStepsCompletedTotal.Load())
	writeCounter(&buf, "pipeline_steps_failed_total", "Total pipeline steps failed", pipelineStepsFailedTotal.Load())
	writeCounter(&buf, "pipeline_runs_completed_total", "Total pipeline runs completed", pipelineRunsCompletedTotal.Load())
	writeCounter(&buf, "pipeline_runs_failed_total", "Total pipeline runs failed", pipelineRunsFailedTotal.Load())
	writeCounter(&buf, "worker_tasks_received_total", "Total worker tasks received", workerTasksReceivedTotal.Load())
	writeCounter(&buf, "worker_tasks_failed_total", "Total worker tasks failed", workerTasksFailedTotal.Load())
	writeCounter(&buf, "worker_tasks_dropped_total", "Total worker tasks dropped after retries", workerTasksDroppedTotal.Load())
	writeCounter(&buf, "stale_jobs_reclaimed_total", "Total stuck transcriptions reclaimed by the sweep", staleJobsReclaimedTotal.Load())
	writeHistogram(&buf, "pipeline_step_duration_ms", "Pipeline step duration in milliseconds", stepDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
