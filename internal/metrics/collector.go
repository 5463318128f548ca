package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livedash"

// Collector counts registry activity with atomic counters and exposes the
// totals as a prometheus.Collector.
type Collector struct {
	dashboardMetrics  *DashboardMetrics
	operationCounters map[string]*int64
	mu                sync.RWMutex
	startTime         time.Time
}

// DashboardMetrics tracks dashboard-level activity
type DashboardMetrics struct {
	// Control registrations
	ControlsRegistered    int64 `json:"controls_registered"`
	ControlsRemoved       int64 `json:"controls_removed"`
	ActiveControls        int64 `json:"active_controls"`
	MaxConcurrentControls int64 `json:"max_concurrent_controls"`

	// Client connections
	ClientsConnected     int64 `json:"clients_connected"`
	ClientsDisconnected  int64 `json:"clients_disconnected"`
	ActiveClients        int64 `json:"active_clients"`
	MaxConcurrentClients int64 `json:"max_concurrent_clients"`

	// Message flow
	MessagesReceived   int64 `json:"messages_received"`
	MessagesEmitted    int64 `json:"messages_emitted"`
	MessagesSuppressed int64 `json:"messages_suppressed"`
	ClientUpdates      int64 `json:"client_updates"`
	HookErrors         int64 `json:"hook_errors"`
	AddressMisses      int64 `json:"address_misses"`

	// Tree
	TreeBroadcasts int64 `json:"tree_broadcasts"`
	Replays        int64 `json:"replays"`

	// Deferred state cleanup
	StatePurges     int64 `json:"state_purges"`
	StateKeysPurged int64 `json:"state_keys_purged"`

	// Uptime
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		dashboardMetrics: &DashboardMetrics{
			StartTime: time.Now(),
		},
		operationCounters: make(map[string]*int64),
		startTime:         time.Now(),
	}
}

func raiseMax(max *int64, current int64) {
	for {
		m := atomic.LoadInt64(max)
		if current <= m {
			return
		}
		if atomic.CompareAndSwapInt64(max, m, current) {
			return
		}
	}
}

// IncrementControlRegistered records a control registration
func (c *Collector) IncrementControlRegistered() {
	atomic.AddInt64(&c.dashboardMetrics.ControlsRegistered, 1)
	active := atomic.AddInt64(&c.dashboardMetrics.ActiveControls, 1)
	raiseMax(&c.dashboardMetrics.MaxConcurrentControls, active)
}

// IncrementControlRemoved records a control deregistration
func (c *Collector) IncrementControlRemoved() {
	atomic.AddInt64(&c.dashboardMetrics.ControlsRemoved, 1)
	atomic.AddInt64(&c.dashboardMetrics.ActiveControls, -1)
}

// IncrementClientConnected records a client connection
func (c *Collector) IncrementClientConnected() {
	atomic.AddInt64(&c.dashboardMetrics.ClientsConnected, 1)
	active := atomic.AddInt64(&c.dashboardMetrics.ActiveClients, 1)
	raiseMax(&c.dashboardMetrics.MaxConcurrentClients, active)
}

// IncrementClientDisconnected records a client going away
func (c *Collector) IncrementClientDisconnected() {
	atomic.AddInt64(&c.dashboardMetrics.ClientsDisconnected, 1)
	atomic.AddInt64(&c.dashboardMetrics.ActiveClients, -1)
}

// IncrementMessageReceived records an inbound flow message
func (c *Collector) IncrementMessageReceived() {
	atomic.AddInt64(&c.dashboardMetrics.MessagesReceived, 1)
}

// IncrementMessageEmitted records a value pushed to clients
func (c *Collector) IncrementMessageEmitted() {
	atomic.AddInt64(&c.dashboardMetrics.MessagesEmitted, 1)
}

// IncrementMessageSuppressed records a message dropped because nothing changed
func (c *Collector) IncrementMessageSuppressed() {
	atomic.AddInt64(&c.dashboardMetrics.MessagesSuppressed, 1)
}

// IncrementClientUpdate records a value change coming from a client
func (c *Collector) IncrementClientUpdate() {
	atomic.AddInt64(&c.dashboardMetrics.ClientUpdates, 1)
}

// IncrementHookError records a failed conversion hook
func (c *Collector) IncrementHookError() {
	atomic.AddInt64(&c.dashboardMetrics.HookErrors, 1)
}

// IncrementAddressMiss records a routing key that matched no instance
func (c *Collector) IncrementAddressMiss() {
	atomic.AddInt64(&c.dashboardMetrics.AddressMisses, 1)
}

// IncrementTreeBroadcast records a tree update sent to all clients
func (c *Collector) IncrementTreeBroadcast() {
	atomic.AddInt64(&c.dashboardMetrics.TreeBroadcasts, 1)
}

// IncrementReplay records a replay served to a client
func (c *Collector) IncrementReplay() {
	atomic.AddInt64(&c.dashboardMetrics.Replays, 1)
}

// IncrementStatePurge records a deferred state cleanup
func (c *Collector) IncrementStatePurge(keysRemoved int64) {
	atomic.AddInt64(&c.dashboardMetrics.StatePurges, 1)
	atomic.AddInt64(&c.dashboardMetrics.StateKeysPurged, keysRemoved)
}

// IncrementCustomCounter increments a custom named counter
func (c *Collector) IncrementCustomCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, exists := c.operationCounters[name]; exists {
		atomic.AddInt64(counter, 1)
	} else {
		var newCounter int64 = 1
		c.operationCounters[name] = &newCounter
	}
}

// GetMetrics returns current dashboard metrics
func (c *Collector) GetMetrics() DashboardMetrics {
	c.mu.RLock()
	start := c.startTime
	c.mu.RUnlock()

	m := c.dashboardMetrics
	return DashboardMetrics{
		ControlsRegistered:    atomic.LoadInt64(&m.ControlsRegistered),
		ControlsRemoved:       atomic.LoadInt64(&m.ControlsRemoved),
		ActiveControls:        atomic.LoadInt64(&m.ActiveControls),
		MaxConcurrentControls: atomic.LoadInt64(&m.MaxConcurrentControls),
		ClientsConnected:      atomic.LoadInt64(&m.ClientsConnected),
		ClientsDisconnected:   atomic.LoadInt64(&m.ClientsDisconnected),
		ActiveClients:         atomic.LoadInt64(&m.ActiveClients),
		MaxConcurrentClients:  atomic.LoadInt64(&m.MaxConcurrentClients),
		MessagesReceived:      atomic.LoadInt64(&m.MessagesReceived),
		MessagesEmitted:       atomic.LoadInt64(&m.MessagesEmitted),
		MessagesSuppressed:    atomic.LoadInt64(&m.MessagesSuppressed),
		ClientUpdates:         atomic.LoadInt64(&m.ClientUpdates),
		HookErrors:            atomic.LoadInt64(&m.HookErrors),
		AddressMisses:         atomic.LoadInt64(&m.AddressMisses),
		TreeBroadcasts:        atomic.LoadInt64(&m.TreeBroadcasts),
		Replays:               atomic.LoadInt64(&m.Replays),
		StatePurges:           atomic.LoadInt64(&m.StatePurges),
		StateKeysPurged:       atomic.LoadInt64(&m.StateKeysPurged),
		StartTime:             start,
		Uptime:                time.Since(start),
	}
}

// GetCustomCounters returns all custom counters
func (c *Collector) GetCustomCounters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64)
	for name, counter := range c.operationCounters {
		result[name] = atomic.LoadInt64(counter)
	}
	return result
}

// GetSuppressionRate returns the share of received messages that were
// dropped as unchanged, in percent.
func (c *Collector) GetSuppressionRate() float64 {
	received := atomic.LoadInt64(&c.dashboardMetrics.MessagesReceived)
	suppressed := atomic.LoadInt64(&c.dashboardMetrics.MessagesSuppressed)
	if received == 0 {
		return 0.0
	}
	return float64(suppressed) / float64(received) * 100.0
}

type metricDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(DashboardMetrics) float64
}

func counter(name, help string, v func(DashboardMetrics) int64) metricDesc {
	return metricDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		kind:  prometheus.CounterValue,
		value: func(m DashboardMetrics) float64 { return float64(v(m)) },
	}
}

func gauge(name, help string, v func(DashboardMetrics) int64) metricDesc {
	d := counter(name, help, v)
	d.kind = prometheus.GaugeValue
	return d
}

var descs = []metricDesc{
	counter("controls_registered_total", "Controls registered.", func(m DashboardMetrics) int64 { return m.ControlsRegistered }),
	counter("controls_removed_total", "Controls deregistered.", func(m DashboardMetrics) int64 { return m.ControlsRemoved }),
	gauge("controls_active", "Controls currently registered.", func(m DashboardMetrics) int64 { return m.ActiveControls }),
	counter("clients_connected_total", "Client connections accepted.", func(m DashboardMetrics) int64 { return m.ClientsConnected }),
	gauge("clients_active", "Clients currently connected.", func(m DashboardMetrics) int64 { return m.ActiveClients }),
	counter("messages_received_total", "Flow messages received.", func(m DashboardMetrics) int64 { return m.MessagesReceived }),
	counter("messages_emitted_total", "Values pushed to clients.", func(m DashboardMetrics) int64 { return m.MessagesEmitted }),
	counter("messages_suppressed_total", "Flow messages dropped as unchanged.", func(m DashboardMetrics) int64 { return m.MessagesSuppressed }),
	counter("client_updates_total", "Value changes received from clients.", func(m DashboardMetrics) int64 { return m.ClientUpdates }),
	counter("hook_errors_total", "Messages dropped by a failing hook.", func(m DashboardMetrics) int64 { return m.HookErrors }),
	counter("address_misses_total", "Messages whose topic matched no instance.", func(m DashboardMetrics) int64 { return m.AddressMisses }),
	counter("tree_broadcasts_total", "Menu tree broadcasts.", func(m DashboardMetrics) int64 { return m.TreeBroadcasts }),
	counter("replays_total", "Replays served to clients.", func(m DashboardMetrics) int64 { return m.Replays }),
	counter("state_purges_total", "Deferred state cleanups run.", func(m DashboardMetrics) int64 { return m.StatePurges }),
	counter("state_keys_purged_total", "State entries removed by cleanup.", func(m DashboardMetrics) int64 { return m.StateKeysPurged }),
}

var customDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "operations_total"),
	"Custom operation counters.",
	[]string{"operation"}, nil,
)

var uptimeDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "uptime_seconds"),
	"Seconds since the collector started.",
	nil, nil,
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descs {
		ch <- d.desc
	}
	ch <- customDesc
	ch <- uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.GetMetrics()
	for _, d := range descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(m))
	}
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, m.Uptime.Seconds())

	counters := c.GetCustomCounters()
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch <- prometheus.MustNewConstMetric(customDesc, prometheus.CounterValue, float64(counters[name]), name)
	}
}
