// Package livedash is the control registry of a live dashboard. Flow nodes
// register controls, which are organized into a navigation tree of menu
// items, pages and groups. The registry keeps the last value of every
// control and keeps connected browser clients in sync over a Transport.
package livedash

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"

	"github.com/livefir/livedash/internal/menu"
	"github.com/livefir/livedash/internal/metrics"
	"github.com/livefir/livedash/internal/state"
	"github.com/livefir/livedash/internal/treeview"
)

// Defaults for Config.
const (
	DefaultRemoveStateTimeout = state.DefaultGracePeriod
	DefaultReplayDelay        = 50 * time.Millisecond
)

// Config holds dashboard configuration options
type Config struct {
	Logger             logr.Logger
	Clock              clock.Clock
	ReadOnly           bool          // Ignore values sent by clients and echo the current value
	RemoveStateTimeout time.Duration // How long live values outlive a removed control
	ReplayDelay        time.Duration // Pause before a replay is served
	Metrics            *metrics.Collector
	ClientListener     ClientListener
}

// Option is a functional option for configuring a Dashboard
type Option func(*Config)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logr.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithClock sets the clock used for replay delays and state cleanup
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithReadOnly makes the dashboard ignore values sent by clients
func WithReadOnly(readOnly bool) Option {
	return func(c *Config) {
		c.ReadOnly = readOnly
	}
}

// WithRemoveStateTimeout sets how long live values outlive a removed control
func WithRemoveStateTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RemoveStateTimeout = d
	}
}

// WithReplayDelay sets the pause before a replay is served to a client
func WithReplayDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ReplayDelay = d
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithClientListener sets a callback for client connects and disconnects
func WithClientListener(l ClientListener) Option {
	return func(c *Config) {
		c.ClientListener = l
	}
}

// ClientEventKind tells what happened to a client.
type ClientEventKind int

const (
	ClientEventConnected ClientEventKind = iota
	ClientEventDisconnected
	ClientEventTabChanged
)

// ClientEvent describes a client connecting, going away or switching tabs.
// Tab is set for ClientEventTabChanged only.
type ClientEvent struct {
	Kind       ClientEventKind
	ID         string
	RemoteAddr string
	Tab        Tab
}

// Tab is the menu position a client switched to and its title.
type Tab struct {
	Item int
	Page int
	Name string
}

// ClientListener is called outside the dashboard lock.
type ClientListener func(ClientEvent)

// Dashboard owns the menu tree and the live state and routes updates
// between registrations and clients.
//
// Every handler runs under one mutex. Client pushes and downstream sends
// are collected while it is held and performed after it is released, so a
// downstream consumer may call back into the dashboard.
type Dashboard struct {
	mu          sync.Mutex
	tree        *menu.Tree
	treePending bool

	state     *state.Store
	bus       updateBus
	transport Transport
	validate  *validator.Validate
	config    Config
	log       logr.Logger
}

// New creates a dashboard that talks to clients through transport.
func New(transport Transport, opts ...Option) *Dashboard {
	config := Config{
		Logger:             logr.Discard(),
		RemoveStateTimeout: DefaultRemoveStateTimeout,
		ReplayDelay:        DefaultReplayDelay,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewCollector()
	}

	d := &Dashboard{
		tree:      menu.NewTree(),
		transport: transport,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		config:    config,
		log:       config.Logger.WithName("livedash"),
	}
	d.state = state.New(&state.Config{
		Clock:       config.Clock,
		GracePeriod: config.RemoveStateTimeout,
		OnPurge: func(owner string, keys int) {
			config.Metrics.IncrementStatePurge(int64(keys))
			d.log.V(1).Info("Dropped state of removed control", "control", owner, "keys", keys)
		},
	})
	transport.Subscribe(d)
	return d
}

// Metrics returns the metrics collector.
func (d *Dashboard) Metrics() *metrics.Collector { return d.config.Metrics }

// effects are side effects collected under the lock.
type effects []func()

func (fx *effects) add(fn func()) { *fx = append(*fx, fn) }

// locked runs fn under the dashboard lock, then runs the effects fn
// collected.
func (d *Dashboard) locked(fn func(fx *effects)) {
	var fx effects
	d.mu.Lock()
	func() {
		defer d.mu.Unlock()
		fn(&fx)
	}()
	for _, f := range fx {
		f()
	}
}

// AddLink adds an external link at the top of the menu and returns the
// function that removes it.
func (d *Dashboard) AddLink(name, url, icon string, order float64, target string) func() {
	var remove func()
	d.locked(func(fx *effects) {
		remove = d.tree.AddLink(&menu.Link{Name: name, URL: url, Icon: icon, Order: order, Target: target})
		d.broadcastTree(fx)
	})
	return func() {
		d.locked(func(fx *effects) {
			remove()
			d.broadcastTree(fx)
		})
	}
}

// Tree returns the JSON encoding of the current menu tree, as sent to
// clients in tree-update events.
func (d *Dashboard) Tree() (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return json.Marshal(d.tree.View())
}

// WriteTree renders the menu tree as text.
func (d *Dashboard) WriteTree(w io.Writer) error {
	d.mu.Lock()
	view := d.tree.View()
	out := treeview.String(view, treeview.NewTheme(lipgloss.NewRenderer(w)))
	d.mu.Unlock()
	_, err := io.WriteString(w, out)
	return err
}

// Emit sends event to every client.
func (d *Dashboard) Emit(event string, payload any) {
	d.locked(func(fx *effects) {
		d.broadcast(fx, event, payload)
	})
}

// EmitTo sends event to the client or room named by the socketid of
// payload, or of its nested msg. A payload that names no client goes to
// everyone.
func (d *Dashboard) EmitTo(event string, payload Msg) {
	d.locked(func(fx *effects) {
		d.push(fx, event, payload)
	})
}

// Value returns the current dataset stored for an effective control id.
func (d *Dashboard) Value(id string) (any, bool) {
	return d.state.Current(id)
}
