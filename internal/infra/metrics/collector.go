package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"home-control/internal/application"
)

const namespace = "home_control"

// Collector exports hub activity on its own registry.
type Collector struct {
	registry *prometheus.Registry

	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	homeOnline    *prometheus.GaugeVec
	statusChanges *prometheus.CounterVec
	toggles       *prometheus.CounterVec
	attributes    *prometheus.CounterVec
	firmware      *prometheus.CounterVec
}

var (
	_ application.Metrics        = (*Collector)(nil)
	_ application.StatusListener = (*Collector)(nil)
)

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_probes_total",
			Help:      "Reachability probes sent to devices, by result",
		}, []string{"result"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_probe_duration_seconds",
			Help:      "Time taken by device reachability probes",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		homeOnline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "home_online",
			Help:      "Last observed home status (1 = online, 0 = offline)",
		}, []string{"user_id"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "home_status_changes_total",
			Help:      "Home status transitions, by new status",
		}, []string{"status"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "light_toggles_total",
			Help:      "Light toggle requests, by outcome",
		}, []string{"outcome"}),
		attributes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attribute_requests_total",
			Help:      "Attribute protocol requests, by action and result",
		}, []string{"action", "result"}),
		firmware: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firmware_steps_total",
			Help:      "Firmware pipeline steps, by step and result",
		}, []string{"step", "result"}),
	}

	c.registry.MustRegister(
		c.probes,
		c.probeDuration,
		c.homeOnline,
		c.statusChanges,
		c.toggles,
		c.attributes,
		c.firmware,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ProbeCompleted(online bool, elapsed time.Duration) {
	c.probes.WithLabelValues(onlineLabel(online)).Inc()
	c.probeDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ToggleCompleted(outcome string) {
	c.toggles.WithLabelValues(outcome).Inc()
}

// AttributeHandled folds unexpected action names into one label value.
func (c *Collector) AttributeHandled(action string, ok bool) {
	if action != "get" && action != "set" {
		action = "invalid"
	}
	c.attributes.WithLabelValues(action, resultLabel(ok)).Inc()
}

func (c *Collector) FirmwareStep(step string, ok bool) {
	c.firmware.WithLabelValues(step, resultLabel(ok)).Inc()
}

func (c *Collector) StatusChanged(_ context.Context, change application.StatusChange) {
	value := 0.0
	if change.Online {
		value = 1
	}
	c.homeOnline.WithLabelValues(strconv.FormatInt(change.UserID, 10)).Set(value)
	if !change.First {
		c.statusChanges.WithLabelValues(onlineLabel(change.Online)).Inc()
	}
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
