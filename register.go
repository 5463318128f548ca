package livedash

import (
	"fmt"
	"strings"

	"github.com/livefir/livedash/internal/address"
	"github.com/livefir/livedash/internal/menu"
	"github.com/livefir/livedash/internal/state"
)

// Behavior holds the per-control switches of the sync protocol.
type Behavior struct {
	// EmitOnlyNewValues drops flow messages whose dataset equals the
	// stored one.
	EmitOnlyNewValues bool
	// ForwardInputMessages passes flow messages on downstream after they
	// were pushed.
	ForwardInputMessages bool
	// StoreFrontEndInputAsState keeps values sent by clients as the
	// control's state and echoes them to every client.
	StoreFrontEndInputAsState bool
	// PersistFrontEndValue keeps the last emitted payload for replay.
	PersistFrontEndValue bool
}

// DefaultBehavior turns every switch on.
func DefaultBehavior() Behavior {
	return Behavior{
		EmitOnlyNewValues:         true,
		ForwardInputMessages:      true,
		StoreFrontEndInputAsState: true,
		PersistFrontEndValue:      true,
	}
}

// RegisterOptions describe a control and where it lives in the menu.
type RegisterOptions struct {
	// ID identifies the control; it is usually the id of the flow node.
	ID string `validate:"required"`
	// Control is the control configuration. It needs a string "type" to
	// appear in the tree. Controls on dynamic pages also need a
	// "topicPattern".
	Control menu.Props
	// Placement is the ancestor chain of the control. An incomplete chain
	// makes Register return ErrNotReady.
	Placement menu.Placement `validate:"-"`
	// Kind selects built-in hooks when Hooks is nil.
	Kind Kind
	// Hooks overrides the built-in hooks of Kind.
	Hooks Hooks `validate:"-"`
	// Behavior defaults to DefaultBehavior.
	Behavior *Behavior
	// Send forwards messages downstream. A nil Send means the control has
	// no outgoing wires.
	Send func(Msg) `validate:"-"`
}

// Registration is a registered control. It must be closed when the flow
// node goes away.
type Registration struct {
	d           *Dashboard
	id          string
	control     *menu.Control
	hooks       Hooks
	behavior    Behavior
	pattern     *address.Pattern
	send        func(Msg)
	remove      func()
	unsubscribe func()
	closed      bool
}

// protectedProps cannot be changed through ui_control.
var protectedProps = map[string]bool{
	"id": true, "type": true, "order": true, "name": true,
	"value": true, "label": true, "width": true, "height": true,
}

// Register adds a control to the menu tree and starts syncing its values.
// A pending state purge for the same id is cancelled, so a control that
// comes back within the grace period keeps its values.
func (d *Dashboard) Register(opts RegisterOptions) (*Registration, error) {
	if err := d.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ValidationToMultiError(err))
	}

	props := opts.Control.Clone()
	props["id"] = opts.ID

	var pattern *address.Pattern
	dynamic := opts.Placement.Page.Dynamic && !menu.IsGlobal(props)
	if dynamic {
		raw := props.String("topicPattern")
		if raw == "" {
			return nil, fmt.Errorf("%w: control %s on dynamic page %s has no topicPattern",
				ErrInvalidConfig, opts.ID, opts.Placement.Page.ID)
		}
		p, err := address.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		pattern = p
	}

	behavior := DefaultBehavior()
	if opts.Behavior != nil {
		behavior = *opts.Behavior
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = HooksFor(opts.Kind, props)
	}

	r := &Registration{
		d:        d,
		id:       opts.ID,
		control:  menu.NewControl(props),
		hooks:    hooks,
		behavior: behavior,
		pattern:  pattern,
		send:     opts.Send,
	}

	var err error
	d.locked(func(fx *effects) {
		remove, addErr := d.tree.Add(opts.Placement, r.control)
		if addErr != nil {
			err = addErr
			return
		}
		r.remove = remove
		d.state.CancelPurge(r.id)
		r.unsubscribe = d.bus.subscribe(r.clientUpdate)
		d.broadcastTree(fx)
	})
	if err != nil {
		d.log.V(1).Info("Control not registered", "control", opts.ID, "error", err.Error())
		return nil, fmt.Errorf("register %s: %w", opts.ID, err)
	}

	d.config.Metrics.IncrementControlRegistered()
	d.log.V(1).Info("Control registered", "control", r.id, "dynamic", dynamic)
	return r, nil
}

// ID returns the control id.
func (r *Registration) ID() string { return r.id }

// Close removes the control from the tree and schedules the removal of its
// state after the grace period. Calling Close again does nothing.
func (r *Registration) Close() {
	d := r.d
	closed := false
	d.locked(func(fx *effects) {
		if r.closed {
			return
		}
		r.closed = true
		closed = true
		r.unsubscribe()
		r.remove()
		d.broadcastTree(fx)
		d.state.SchedulePurge(r.id)
	})
	if closed {
		d.config.Metrics.IncrementControlRemoved()
		d.log.V(1).Info("Control removed", "control", r.id)
	}
}

// Input handles a message arriving from the flow. It returns ErrClosed
// after Close, a *HookError when a hook failed and ErrAddressMismatch when
// a dynamic control cannot tell which instance the message is for. In all
// those cases nothing was pushed and no state changed.
func (r *Registration) Input(msg Msg) error {
	var err error
	r.d.locked(func(fx *effects) {
		err = r.input(msg, fx)
	})
	return err
}

func (r *Registration) input(msg Msg, fx *effects) error {
	d := r.d
	if r.closed {
		return ErrClosed
	}
	d.config.Metrics.IncrementMessageReceived()
	log := d.log.WithValues("control", r.id)

	if enabled, ok := msg["enabled"].(bool); ok {
		snap := state.Snapshot{"id": r.id}
		if prev, found := d.state.Replay(r.id); found {
			snap = prev.Clone()
		}
		snap["disabled"] = !enabled
		d.state.SetReplay(r.id, r.id, snap)
		d.broadcast(fx, EventUpdateValue, snap)
	}

	m := msg.Clone()
	delete(m, "res")
	delete(m, "req")

	if override, ok := asMsg(m["ui_control"]); ok {
		changed := Msg{}
		for k, v := range override {
			if protectedProps[k] || !r.control.Props.Has(k) {
				continue
			}
			r.control.Props[k] = v
			changed[k] = v
		}
		if len(changed) > 0 {
			d.broadcast(fx, EventControlChanged, Msg{"control": changed, "id": r.id})
		}
		if !m.Has("payload") {
			return nil
		}
	}

	eid := r.id
	if r.pattern != nil {
		resolved, err := r.pattern.Resolve(r.id, m.String("topic"))
		if err != nil {
			d.config.Metrics.IncrementAddressMiss()
			log.Info("Dropping message for unknown instance", "topic", m["topic"], "pattern", r.pattern.String())
			return err
		}
		eid = resolved
	}

	old, _ := d.state.Current(eid)
	conv, err := safely("convert", func() (Conversion, error) {
		return r.hooks.Convert(m["payload"], old, m, r.control.Props.Float("step"))
	})
	if err != nil {
		return r.hookFailed(err)
	}

	var (
		full     any
		point    any
		hasPoint bool
	)
	switch conv.kind {
	case conversionUnchanged:
		full, point, hasPoint = old, true, true
	case conversionIncremental:
		full, point, hasPoint = conv.value, conv.point, conv.point != nil
	default:
		full = conv.value
	}

	if !hasPoint && r.behavior.EmitOnlyNewValues && shallowEqual(old, full) {
		d.config.Metrics.IncrementMessageSuppressed()
		return nil
	}

	toStore, err := safely("beforeEmit", func() (Msg, error) { return r.hooks.BeforeEmit(m, full) })
	if err != nil {
		return r.hookFailed(err)
	}
	toStore = toStore.Clone()
	toEmit := toStore
	if _, isFlag := point.(bool); hasPoint && !isFlag {
		toEmit, err = safely("beforeEmit", func() (Msg, error) { return r.hooks.BeforeEmit(m, point) })
		if err != nil {
			return r.hookFailed(err)
		}
		toEmit = toEmit.Clone()
	}

	addTemplateFields(toEmit, r.control.Props, m)
	if m.Has("enabled") {
		toEmit["disabled"] = !truthy(m["enabled"])
	}
	toEmit["socketid"] = eid
	toEmit["id"] = eid
	toStore["id"] = eid

	var forward Msg
	if r.behavior.ForwardInputMessages && r.send != nil {
		if forward, err = r.outbound(m, full, nil); err != nil {
			return r.hookFailed(err)
		}
	}

	d.state.SetCurrent(r.id, eid, full)
	d.push(fx, EventUpdateValue, toEmit)
	if r.behavior.PersistFrontEndValue {
		d.state.SetReplay(r.id, eid, state.Snapshot(toStore))
	}
	if forward != nil {
		r.forward(fx, forward)
	}
	d.config.Metrics.IncrementMessageEmitted()
	return nil
}

// outbound builds the downstream message: msg with its payload replaced by
// the converted-back value, shaped by BeforeSend.
func (r *Registration) outbound(msg Msg, value any, orig Msg) (Msg, error) {
	payload, err := safely("convertBack", func() (any, error) { return r.hooks.ConvertBack(value) })
	if err != nil {
		return nil, err
	}
	out := msg.Clone()
	out["payload"] = payload
	shaped, err := safely("beforeSend", func() (Msg, error) { return r.hooks.BeforeSend(out, orig) })
	if err != nil {
		return nil, err
	}
	if shaped != nil {
		out = shaped.Clone()
	}
	return out, nil
}

func (r *Registration) forward(fx *effects, msg Msg) {
	send := r.send
	fx.add(func() { send(msg) })
}

func (r *Registration) hookFailed(err error) error {
	r.d.config.Metrics.IncrementHookError()
	r.d.log.Error(err, "Dropping message", "control", r.id)
	return err
}

// accepts reports whether a client update for id is meant for r. Dynamic
// controls also take updates for their instances.
func (r *Registration) accepts(id string) bool {
	return id == r.id || (r.pattern != nil && strings.HasPrefix(id, r.id+"."))
}

// clientUpdate handles a value sent by a client. It runs under the
// dashboard lock.
func (r *Registration) clientUpdate(u ClientUpdate, raw Msg, fx *effects) {
	if r.closed || !r.accepts(u.ID) {
		return
	}
	d := r.d
	if d.config.ReadOnly {
		cur, _ := d.state.Current(u.ID)
		raw["value"] = cur
	} else {
		payload, err := safely("convertBack", func() (any, error) { return r.hooks.ConvertBack(u.Value) })
		if err != nil {
			r.hookFailed(err)
			return
		}
		toSend := Msg{"payload": payload}
		shaped, err := safely("beforeSend", func() (Msg, error) { return r.hooks.BeforeSend(toSend, raw.Clone()) })
		if err != nil {
			r.hookFailed(err)
			return
		}
		if shaped != nil {
			toSend = shaped.Clone()
		}

		if r.behavior.StoreFrontEndInputAsState {
			d.state.SetCurrent(r.id, u.ID, payload)
			if r.behavior.PersistFrontEndValue {
				d.state.SetReplay(r.id, u.ID, state.Snapshot(raw.Clone()))
			}
		}
		if toSend.String("socketid") == "" && u.SocketID != "" {
			toSend["socketid"] = u.SocketID
		}
		if v, ok := toSend["topic"]; ok && v == nil {
			delete(toSend, "topic")
		}
		if r.send != nil && !raw.Has("_fromInput") {
			r.forward(fx, toSend)
		}
	}
	if r.behavior.StoreFrontEndInputAsState {
		d.broadcast(fx, EventUpdateValue, raw)
	}
}
