package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("Given a Metrics instance", t, func() {
		m := New()

		Convey("Counters should record increments", func() {
			m.JobsStarted.Inc()
			m.JobsFinished.WithLabelValues("done").Inc()
			m.FilesArchived.Add(3)

			So(testutil.ToFloat64(m.JobsStarted), ShouldEqual, 1)
			So(testutil.ToFloat64(m.JobsFinished.WithLabelValues("done")), ShouldEqual, 1)
			So(testutil.ToFloat64(m.FilesArchived), ShouldEqual, 3)
		})

		Convey("Two instances should not collide", func() {
			So(func() { New() }, ShouldNotPanic)
		})

		Convey("The handler should expose the registry", func() {
			m.ScheduledRuns.WithLabelValues("skipped").Inc()

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			body, _ := io.ReadAll(rec.Body)

			So(rec.Code, ShouldEqual, 200)
			So(string(body), ShouldContainSubstring, `sitekeep_scheduled_runs_total{outcome="skipped"} 1`)
		})
	})
}
