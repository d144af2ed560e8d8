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
	analysisStartedTotal   atomic.Uint64
	analysisCompletedTotal atomic.Uint64
	analysisFailedTotal    atomic.Uint64

	analysisJobsReceivedTotal             atomic.Uint64
	analysisJobsFailedTotal               atomic.Uint64
	analysisJobsCompletedTotal            atomic.Uint64
	analysisJobsDeletedUnrecoverableTotal atomic.Uint64

	analysisDuration = newHistogram([]float64{500, 1000, 2000, 5000, 10000, 30000, 60000, 120000, 300000})
)

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() {
	analysisStartedTotal.Add(1)
}

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() {
	analysisCompletedTotal.Add(1)
}

// IncAnalysisFailed increments the failed counter.
func IncAnalysisFailed() {
	analysisFailedTotal.Add(1)
}

// IncAnalysisJobsReceived increments the worker jobs-received counter.
func IncAnalysisJobsReceived() {
	analysisJobsReceivedTotal.Add(1)
}

// IncAnalysisJobsFailed increments the worker jobs-failed counter.
func IncAnalysisJobsFailed() {
	analysisJobsFailedTotal.Add(1)
}

// IncAnalysisJobsCompleted increments the worker jobs-completed counter.
func IncAnalysisJobsCompleted() {
	analysisJobsCompletedTotal.Add(1)
}

// IncAnalysisJobsDeletedUnrecoverable increments the counter for messages
// deleted without processing because they can never succeed.
func IncAnalysisJobsDeletedUnrecoverable() {
	analysisJobsDeletedUnrecoverableTotal.Add(1)
}

// ObserveAnalysisDurationMs records a workflow run duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
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
	writeCounter(&buf, "analysis_started_total", "Total analysis workflows started", analysisStartedTotal.Load())
	writeCounter(&buf, "analysis_completed_total", "Total analysis workflows completed", analysisCompletedTotal.Load())
	writeCounter(&buf, "analysis_failed_total", "Total analysis workflows failed", analysisFailedTotal.Load())
	writeCounter(&buf, "analysis_jobs_received_total", "Total queue messages received", analysisJobsReceivedTotal.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Total queue messages processed", analysisJobsCompletedTotal.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Total queue messages failed", analysisJobsFailedTotal.Load())
	writeCounter(&buf, "analysis_jobs_deleted_unrecoverable_total", "Total unrecoverable queue messages deleted", analysisJobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "analysis_duration_ms", "Workflow run duration in milliseconds", analysisDuration.Snapshot())
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
		fmt.Fprintf(buf, "%s_bucket{le=%q} %d\n", name, strconv.FormatFloat(bound, 'f', -1, 64), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, strconv.FormatFloat(snap.sum, 'f', -1, 64))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}
