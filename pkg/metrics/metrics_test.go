package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be enabled with the default refresh interval", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)
				manager.tournamentsStarted.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_tournaments_started_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording tournament metrics", func() {
			before := testutil.ToFloat64(globalManager.tournamentsStarted)
			RecordTournamentStarted()
			RecordTournamentCompleted(3)
			RecordTournamentRestarted()
			RecordGameNotStarted("too_few_photos")
			RecordMatchResolved("win")
			RecordMatchResolved("no_decision")
			RecordDecisionRejected("stale_match")
			RecordRatingDelta(-16)

			Convey("Then counters should advance", func() {
				So(testutil.ToFloat64(globalManager.tournamentsStarted), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.matchesResolved.WithLabelValues("win")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording infrastructure metrics", func() {
			Convey("Then nothing should panic", func() {
				So(func() {
					UpdateActiveSessions(2)
					UpdateRatedPhotos(10)
					RecordCatalogFetch("file", 1.5, 12)
					UpdateRepositoryRecordsTotal(12)
					RecordRepositoryUpdateLatency("memory", 0.1)
					RecordRepositoryQueryLatency("bolt", 0.2)
					UpdateQueueCapacity(100)
					UpdateQueueSize(3)
					UpdateQueueUtilization(0.03)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(0.01)
					UpdateWorkerActiveCount(2)
					UpdateWorkerMessagesPerSecond(4)
					RecordWorkerProcessingLatency(3)
					RecordWorkerError()
					RecordHTTPRequest("leaderboard", "GET", "200")
					RecordHTTPRequestDuration("leaderboard", "GET", "200", 1.2)
					RecordErrorByComponent("api", "validation")
					RecordErrorByType("validation", "warning")
					RecordErrorByEndpoint("decide", "POST", "conflict")
					RecordErrorLatency("api", "validation", 0.5)
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(8)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording is disabled", func() {
			SetEnabled(false)
			defer SetEnabled(true)
			before := testutil.ToFloat64(globalManager.tournamentsRestarted)
			RecordTournamentRestarted()

			Convey("Then observations should be ignored", func() {
				So(testutil.ToFloat64(globalManager.tournamentsRestarted), ShouldEqual, before)
			})
		})

		Convey("When reading the registry", func() {
			Convey("Then it should be the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
				So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a reconfigured global manager", t, func() {
		prevManager, prevRegistry := globalManager, customRegistry
		Reset(func() { globalManager, customRegistry = prevManager, prevRegistry })

		Configure(
			WithNamespace("cats"),
			WithRefreshInterval(2*time.Second),
			WithConstLabels(map[string]string{"env": "staging"}),
		)
		RecordTournamentStarted()

		Convey("Then the exported registry carries the new names and labels", func() {
			So(GetRegistry(), ShouldNotEqual, prevRegistry)
			So(RefreshInterval(), ShouldEqual, 2*time.Second)

			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var labels map[string]string
			for _, f := range families {
				if f.GetName() == "cats_game_tournaments_started_total" {
					labels = map[string]string{}
					for _, l := range f.GetMetric()[0].GetLabel() {
						labels[l.GetName()] = l.GetValue()
					}
				}
			}
			So(labels, ShouldResemble, map[string]string{"env": "staging"})
		})
	})
}
