// Package metrics provides a Prometheus-backed Observer for the quest
// engine. It registers counters and histograms on its own registry and
// exposes them over HTTP via Handler.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrijr/quest/pkg/api"
)

// PrometheusObserver implements api.Observer on top of a Prometheus
// registry. Plug it into a supervisor directly or fan it out alongside other
// observers with api.NewCompositeObserver.
type PrometheusObserver struct {
	registry *prometheus.Registry

	questsStarted   *prometheus.CounterVec
	questsSettled   *prometheus.CounterVec
	eventsApplied   *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	commands        *prometheus.CounterVec
	dispatchRetries *prometheus.CounterVec
	compensations   *prometheus.CounterVec
	dispatchTime    prometheus.Histogram
	activeQuests    prometheus.Gauge
}

var _ api.Observer = (*PrometheusObserver)(nil)

// New creates a PrometheusObserver with its own registry.
func New() *PrometheusObserver {
	registry := prometheus.NewRegistry()

	questsStarted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quest_started_total",
		Help: "Total number of quest instances born.",
	}, []string{"definition"})

	questsSettled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quest_settled_total",
		Help: "Total number of quest instances reaching a terminal status.",
	}, []string{"definition", "status"})

	eventsApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quest_events_applied_total",
		Help: "Total number of events that mutated an instance.",
	}, []string{"definition"})

	eventsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quest_events_dropped_total",
		Help: "Total number of events dropped as duplicate, stale, or unroutable.",
	}, []string{"event_type"})

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quest_commands_dispatched_total",
		Help: "Total number of commands accepted by the sink.",
	}, []string{"definition", "command_type"})

	dispatchRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quest_dispatch_retries_total",
		Help: "Total number of command dispatch retries.",
	}, []string{"definition", "command_type"})

	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quest_compensations_total",
		Help: "Total number of compensating commands issued.",
	}, []string{"definition"})

	dispatchTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quest_dispatch_duration_seconds",
		Help:    "Time from deciding to dispatch a command until sink acceptance, including retries.",
		Buckets: prometheus.DefBuckets,
	})

	activeQuests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quest_active",
		Help: "Current number of non-terminal quest instances.",
	})

	registry.MustRegister(questsStarted, questsSettled, eventsApplied, eventsDropped,
		commands, dispatchRetries, compensations, dispatchTime, activeQuests)

	return &PrometheusObserver{
		registry:        registry,
		questsStarted:   questsStarted,
		questsSettled:   questsSettled,
		eventsApplied:   eventsApplied,
		eventsDropped:   eventsDropped,
		commands:        commands,
		dispatchRetries: dispatchRetries,
		compensations:   compensations,
		dispatchTime:    dispatchTime,
		activeQuests:    activeQuests,
	}
}

// Handler exposes the metrics registry via HTTP.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for callers that merge it into
// an application-wide one.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

func (o *PrometheusObserver) OnQuestStart(ctx context.Context, inst *api.Instance) {
	o.questsStarted.WithLabelValues(inst.DefinitionID).Inc()
	o.activeQuests.Inc()
}

func (o *PrometheusObserver) OnEventApplied(ctx context.Context, inst *api.Instance, ev api.Event) {
	o.eventsApplied.WithLabelValues(inst.DefinitionID).Inc()
}

func (o *PrometheusObserver) OnEventDropped(ctx context.Context, ev api.Event, reason string) {
	o.eventsDropped.WithLabelValues(ev.Type).Inc()
}

func (o *PrometheusObserver) OnCommandDispatched(ctx context.Context, inst *api.Instance, cmd api.Command, attempt int, d time.Duration) {
	o.commands.WithLabelValues(inst.DefinitionID, cmd.Type).Inc()
	o.dispatchTime.Observe(d.Seconds())
}

func (o *PrometheusObserver) OnDispatchRetry(ctx context.Context, inst *api.Instance, cmd api.Command, attempt int, err error) {
	o.dispatchRetries.WithLabelValues(inst.DefinitionID, cmd.Type).Inc()
}

func (o *PrometheusObserver) OnCompensation(ctx context.Context, inst *api.Instance, cmd api.Command) {
	o.compensations.WithLabelValues(inst.DefinitionID).Inc()
	o.questsSettled.WithLabelValues(inst.DefinitionID, string(api.StatusCompensated)).Inc()
	o.activeQuests.Dec()
}

func (o *PrometheusObserver) OnQuestCompleted(ctx context.Context, inst *api.Instance) {
	o.questsSettled.WithLabelValues(inst.DefinitionID, string(api.StatusCompleted)).Inc()
	o.activeQuests.Dec()
}

func (o *PrometheusObserver) OnQuestFailed(ctx context.Context, inst *api.Instance, reason string) {
	o.questsSettled.WithLabelValues(inst.DefinitionID, string(api.StatusFailed)).Inc()
	o.activeQuests.Dec()
}
