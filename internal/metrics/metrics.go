// Package metrics tracks alert counts, SMS outcomes, and per-API latency,
// exposed both as a JSON snapshot and as a native Prometheus collector.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weatheralertd/weatheralertd/internal/model"
)

const latencyWindowSize = 100

// latencyWindow is a mutex-guarded ring buffer of the last 100 latency
// samples for one API.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (w *latencyWindow) record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, d)
	if len(w.samples) > latencyWindowSize {
		w.samples = w.samples[len(w.samples)-latencyWindowSize:]
	}
}

// APILatency is the JSON shape for one API's latency window.
type APILatency struct {
	Count          int     `json:"count"`
	TotalLatency   float64 `json:"totalLatency"`
	AverageLatency float64 `json:"averageLatency"`
	MinLatency     float64 `json:"minLatency"`
	MaxLatency     float64 `json:"maxLatency"`
}

func (w *latencyWindow) snapshot() APILatency {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return APILatency{}
	}
	var total, min, max float64
	min = float64(w.samples[0].Milliseconds())
	for _, s := range w.samples {
		ms := float64(s.Milliseconds())
		total += ms
		if ms < min {
			min = ms
		}
		if ms > max {
			max = ms
		}
	}
	return APILatency{
		Count:          len(w.samples),
		TotalLatency:   total,
		AverageLatency: total / float64(len(w.samples)),
		MinLatency:     min,
		MaxLatency:     max,
	}
}

// Service is the MetricsService backing both /metrics and /metrics/prom.
type Service struct {
	startedAt time.Time
	registry  *prometheus.Registry

	mu          sync.Mutex
	alertCounts map[model.AlertType]int
	smsSent     int
	smsFailed   int
	lastReset   time.Time

	openMeteoLatency *latencyWindow
	backendLatency   *latencyWindow

	alertsDesc *prometheus.Desc
	smsDesc    *prometheus.Desc
	uptimeDesc *prometheus.Desc
}

// New constructs a Service and registers it on its own private registry,
// rather than the global default one, so multiple Services (e.g. one per
// test) never collide over duplicate metric names.
func New() *Service {
	now := time.Now()
	s := &Service{
		startedAt:        now,
		registry:         prometheus.NewRegistry(),
		alertCounts:      make(map[model.AlertType]int),
		lastReset:        now,
		openMeteoLatency: &latencyWindow{},
		backendLatency:   &latencyWindow{},
		alertsDesc:       prometheus.NewDesc("weatheralertd_alerts_total", "Alerts emitted by type", []string{"alert_type"}, nil),
		smsDesc:          prometheus.NewDesc("weatheralertd_sms_total", "SMS attempts by outcome", []string{"outcome"}, nil),
		uptimeDesc:       prometheus.NewDesc("weatheralertd_uptime_seconds", "Process uptime in seconds", nil, nil),
	}
	s.registry.MustRegister(s)
	return s
}

// Registry returns the private registry this Service is registered on, for
// /metrics/prom to serve via promhttp.HandlerFor.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// RecordAlert increments the counter for one emitted alert.
func (s *Service) RecordAlert(alertType model.AlertType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertCounts[alertType]++
}

// RecordSMS records one SMS send outcome.
func (s *Service) RecordSMS(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.smsSent++
	} else {
		s.smsFailed++
	}
}

// RecordOpenMeteoLatency records one WeatherClient round-trip latency.
func (s *Service) RecordOpenMeteoLatency(d time.Duration) {
	s.openMeteoLatency.record(d)
}

// RecordBackendLatency records one PlantsClient round-trip latency.
func (s *Service) RecordBackendLatency(d time.Duration) {
	s.backendLatency.record(d)
}

// Snapshot is the /metrics JSON response shape.
type Snapshot struct {
	Alerts     map[string]int `json:"alerts"`
	SMS        smsSnapshot    `json:"sms"`
	APILatency apiLatency     `json:"apiLatency"`
	Uptime     float64        `json:"uptime"`
	LastReset  time.Time      `json:"lastReset"`
}

type smsSnapshot struct {
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

type apiLatency struct {
	OpenMeteo APILatency `json:"openmeteo"`
	Backend   APILatency `json:"backend"`
}

// Snapshot returns the current metrics view. SMS success rate is 0 when no
// attempts have been made, rather than NaN.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	alerts := make(map[string]int, len(s.alertCounts))
	for k, v := range s.alertCounts {
		alerts[string(k)] = v
	}
	sent, failed := s.smsSent, s.smsFailed
	lastReset := s.lastReset
	s.mu.Unlock()

	var successRate float64
	if total := sent + failed; total > 0 {
		successRate = roundTo2(float64(sent) / float64(total))
	}

	return Snapshot{
		Alerts: alerts,
		SMS: smsSnapshot{
			Sent:        sent,
			Failed:      failed,
			SuccessRate: successRate,
		},
		APILatency: apiLatency{
			OpenMeteo: s.openMeteoLatency.snapshot(),
			Backend:   s.backendLatency.snapshot(),
		},
		Uptime:    time.Since(s.startedAt).Seconds(),
		LastReset: lastReset,
	}
}

func roundTo2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// Describe implements prometheus.Collector.
func (s *Service) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.alertsDesc
	ch <- s.smsDesc
	ch <- s.uptimeDesc
}

// Collect implements prometheus.Collector.
func (s *Service) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	for alertType, count := range snap.Alerts {
		ch <- prometheus.MustNewConstMetric(s.alertsDesc, prometheus.CounterValue, float64(count), alertType)
	}
	ch <- prometheus.MustNewConstMetric(s.smsDesc, prometheus.CounterValue, float64(snap.SMS.Sent), "sent")
	ch <- prometheus.MustNewConstMetric(s.smsDesc, prometheus.CounterValue, float64(snap.SMS.Failed), "failed")
	ch <- prometheus.MustNewConstMetric(s.uptimeDesc, prometheus.GaugeValue, snap.Uptime)
}
