package livedash

import (
	"encoding/json"
	"errors"
)

// push delivers payload to the client or room it names through its
// socketid field, or the socketid of its nested msg, and to everyone
// otherwise. The payload is encoded now; delivery happens after unlock.
func (d *Dashboard) push(fx *effects, event string, payload Msg) {
	raw, err := json.Marshal(payload)
	if err != nil {
		d.log.Error(err, "Failed to encode push", "event", event)
		return
	}
	target := pushTarget(payload)
	fx.add(func() {
		var err error
		if target != "" {
			err = d.transport.SendToClient(target, event, json.RawMessage(raw))
		} else {
			err = d.transport.BroadcastToAll(event, json.RawMessage(raw))
		}
		if err != nil {
			d.log.V(1).Info("Push failed", "event", event, "error", err.Error())
		}
	})
}

func pushTarget(payload Msg) string {
	if nested, ok := asMsg(payload["msg"]); ok {
		if id, ok := nested["socketid"].(string); ok && id != "" {
			return id
		}
	}
	if id, ok := payload["socketid"].(string); ok && id != "" {
		return id
	}
	return ""
}

// broadcast sends payload to every client regardless of its addressing.
func (d *Dashboard) broadcast(fx *effects, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		d.log.Error(err, "Failed to encode broadcast", "event", event)
		return
	}
	fx.add(func() {
		if err := d.transport.BroadcastToAll(event, json.RawMessage(raw)); err != nil {
			d.log.V(1).Info("Broadcast failed", "event", event, "error", err.Error())
		}
	})
}

// broadcastTree schedules one tree-update for all clients. Calls made
// before the scheduled update runs are folded into it.
func (d *Dashboard) broadcastTree(fx *effects) {
	if d.treePending {
		return
	}
	d.treePending = true
	fx.add(func() { go d.flushTree() })
}

func (d *Dashboard) flushTree() {
	d.mu.Lock()
	d.treePending = false
	raw, err := json.Marshal(d.tree.View())
	d.mu.Unlock()
	if err != nil {
		d.log.Error(err, "Failed to encode menu tree")
		return
	}
	d.config.Metrics.IncrementTreeBroadcast()
	if err := d.transport.BroadcastToAll(EventTreeUpdate, json.RawMessage(raw)); err != nil {
		d.log.V(1).Info("Tree broadcast failed", "error", err.Error())
	}
}

func (d *Dashboard) sendTree(client string) {
	raw, err := d.Tree()
	if err != nil {
		d.log.Error(err, "Failed to encode menu tree")
		return
	}
	if err := d.transport.SendToClient(client, EventTreeUpdate, raw); err != nil {
		d.log.V(1).Info("Tree push failed", "client", client, "error", err.Error())
	}
}

// ClientConnected implements ClientHandler. The new client gets the tree
// right away.
func (d *Dashboard) ClientConnected(id, remoteAddr string) {
	d.config.Metrics.IncrementClientConnected()
	d.sendTree(id)
	if l := d.config.ClientListener; l != nil {
		l(ClientEvent{Kind: ClientEventConnected, ID: id, RemoteAddr: remoteAddr})
	}
}

// ClientDisconnected implements ClientHandler.
func (d *Dashboard) ClientDisconnected(id, remoteAddr string) {
	d.config.Metrics.IncrementClientDisconnected()
	if l := d.config.ClientListener; l != nil {
		l(ClientEvent{Kind: ClientEventDisconnected, ID: id, RemoteAddr: remoteAddr})
	}
}

// ClientMessage implements ClientHandler. A refresh-request schedules a
// tree-update for every client, folded with any update already pending.
func (d *Dashboard) ClientMessage(id, event string, data json.RawMessage) {
	log := d.log.WithValues("client", id, "event", event)
	switch event {
	case EventUpdateValue:
		cd, err := newClientData(data)
		if err != nil {
			log.Info("Dropping client update", "error", err.Error())
			return
		}
		var u ClientUpdate
		if err := cd.BindAndValidate(&u, d.validate); err != nil {
			var merr MultiError
			if errors.As(err, &merr) && len(merr) == 0 {
				err = errors.New("malformed update")
			}
			log.Info("Dropping client update", "error", err.Error())
			return
		}
		raw := cd.Raw()
		if u.SocketID == "" {
			u.SocketID = id
			raw["socketid"] = id
		}
		d.config.Metrics.IncrementClientUpdate()
		d.locked(func(fx *effects) {
			d.bus.publish(u, raw, fx)
		})
	case EventReplayRequest:
		d.config.Clock.AfterFunc(d.config.ReplayDelay, func() { d.replay(id) })
	case EventRefreshRequest:
		d.locked(d.broadcastTree)
	case EventTabChange:
		d.tabChanged(id, data)
	default:
		d.config.Metrics.IncrementCustomCounter("unknown_client_event")
		log.V(1).Info("Ignoring unknown client event")
	}
}

func (d *Dashboard) tabChanged(client string, data json.RawMessage) {
	var tc TabChange
	if err := json.Unmarshal(data, &tc); err != nil {
		d.log.V(1).Info("Dropping tab change", "client", client, "error", err.Error())
		return
	}
	if err := d.validate.Struct(tc); err != nil {
		d.log.V(1).Info("Dropping tab change", "client", client, "error", ValidationToMultiError(err).Error())
		return
	}
	d.mu.Lock()
	name, ok := d.tree.TabName(*tc.Item, *tc.Page)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.config.Metrics.IncrementCustomCounter("tab_change")
	if l := d.config.ClientListener; l != nil {
		l(ClientEvent{Kind: ClientEventTabChanged, ID: client, Tab: Tab{Item: *tc.Item, Page: *tc.Page, Name: name}})
	}
}

// replay sends every stored snapshot to one client, then the replay-done
// marker.
func (d *Dashboard) replay(client string) {
	snaps := d.state.Snapshots()
	frames := make([]json.RawMessage, 0, len(snaps))
	d.mu.Lock()
	for _, snap := range snaps {
		raw, err := json.Marshal(snap)
		if err != nil {
			d.log.Error(err, "Failed to encode replay snapshot", "id", snap["id"])
			continue
		}
		frames = append(frames, raw)
	}
	d.mu.Unlock()

	for _, raw := range frames {
		if err := d.transport.SendToClient(client, EventUpdateValue, raw); err != nil {
			d.log.V(1).Info("Replay failed", "client", client, "error", err.Error())
			return
		}
	}
	if err := d.transport.SendToClient(client, EventReplayDone, nil); err != nil {
		d.log.V(1).Info("Replay failed", "client", client, "error", err.Error())
	}
	d.config.Metrics.IncrementReplay()
}

func asMsg(v any) (Msg, bool) {
	switch m := v.(type) {
	case Msg:
		return m, true
	case map[string]any:
		return Msg(m), true
	}
	return nil, false
}
