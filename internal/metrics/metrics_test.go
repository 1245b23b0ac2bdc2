package metrics_test

import (
	"net/http/httptest"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joe/depot-sync/internal/metrics"
)

// Collectors are process-global, so these tests assert deltas and do not run in parallel.

func TestFileSyncCounters(t *testing.T) {
	g := NewWithT(t)

	before := scrape(t)

	metrics.RecordFileSync(2048, true)
	metrics.RecordFileSync(100, false)

	after := scrape(t)
	g.Expect(after).To(ContainSubstring(`depotsync_files_synced_total{outcome="success"}`))
	g.Expect(after).To(ContainSubstring(`depotsync_files_synced_total{outcome="error"}`))
	g.Expect(after).ToNot(Equal(before))
}

func TestWorkerStartedTracksActiveWorkers(t *testing.T) {
	g := NewWithT(t)

	done := metrics.WorkerStarted(metrics.PhasePlan)
	g.Expect(scrape(t)).To(ContainSubstring(`depotsync_workers_active{phase="plan"} 1`))

	done(metrics.OutcomeToSync)
	g.Expect(scrape(t)).To(ContainSubstring(`depotsync_workers_active{phase="plan"} 0`))
	g.Expect(scrape(t)).To(ContainSubstring(`depotsync_workers_total{outcome="to_sync",phase="plan"} 1`))
}

func TestCandidateCounterLints(t *testing.T) {
	g := NewWithT(t)

	metrics.RecordCandidates(5)
	metrics.RecordStaleEvent()

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer, "depotsync_candidates_found_total")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(problems).To(BeEmpty())
}

func scrape(t *testing.T) string {
	t.Helper()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	return rec.Body.String()
}
