package livedash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/livedash/internal/menu"
)

// frame is one event handed to the fake transport. Target is empty for
// broadcasts.
type frame struct {
	Target string
	Event  string
	Data   json.RawMessage
}

func (f frame) decode(t *testing.T) Msg {
	t.Helper()
	var m Msg
	require.NoError(t, json.Unmarshal(f.Data, &m))
	return m
}

type fakeTransport struct {
	mu      sync.Mutex
	frames  []frame
	handler ClientHandler
}

func (f *fakeTransport) BroadcastToAll(event string, data any) error {
	return f.record("", event, data)
}

func (f *fakeTransport) SendToClient(target, event string, data any) error {
	return f.record(target, event, data)
}

func (f *fakeTransport) Subscribe(h ClientHandler) { f.handler = h }

func (f *fakeTransport) record(target, event string, data any) error {
	var raw json.RawMessage
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		raw = b
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame{Target: target, Event: event, Data: raw})
	return nil
}

// events returns the frames of one event kind, in order.
func (f *fakeTransport) events(event string) []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []frame
	for _, fr := range f.frames {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) to(target string) []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []frame
	for _, fr := range f.frames {
		if fr.Target == target {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func newTestDashboard(t *testing.T, opts ...Option) (*Dashboard, *fakeTransport, *clock.Mock) {
	t.Helper()
	tr := &fakeTransport{}
	mock := clock.NewMock()
	opts = append([]Option{WithLogger(testr.New(t)), WithClock(mock)}, opts...)
	d := New(tr, opts...)
	require.Same(t, d, tr.handler)
	return d, tr, mock
}

func climatePlacement() menu.Placement {
	return menu.Placement{
		Items: []menu.ItemConfig{{ID: "home", Name: "Home", PathName: "home"}},
		Page:  menu.PageConfig{ID: "climate", Name: "Climate", PathName: "climate"},
		Group: menu.GroupConfig{ID: "sensors", Name: "Sensors"},
	}
}

func gauge(id string) RegisterOptions {
	return RegisterOptions{
		ID:        id,
		Control:   menu.Props{"type": "gauge", "label": "Temperature", "order": 1},
		Placement: climatePlacement(),
	}
}

func TestDashboard_TreeBroadcastOnRegister(t *testing.T) {
	d, tr, _ := newTestDashboard(t)

	_, err := d.Register(gauge("temp"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(tr.events(EventTreeUpdate)) > 0
	}, time.Second, 5*time.Millisecond)

	raw, err := d.Tree()
	require.NoError(t, err)
	var view struct {
		Menu []struct {
			ID    string `json:"id"`
			Items []struct {
				ID    string `json:"id"`
				Path  string `json:"path"`
				Items []struct {
					ID    string `json:"id"`
					Items []struct {
						ID   string `json:"id"`
						Type string `json:"type"`
					} `json:"items"`
				} `json:"items"`
			} `json:"items"`
		} `json:"menu"`
		Globals []any `json:"globals"`
	}
	require.NoError(t, json.Unmarshal(raw, &view))
	require.Len(t, view.Menu, 1)
	assert.Equal(t, "home", view.Menu[0].ID)
	require.Len(t, view.Menu[0].Items, 1)
	page := view.Menu[0].Items[0]
	assert.Equal(t, "/d/home/climate", page.Path)
	require.Len(t, page.Items, 1)
	require.Len(t, page.Items[0].Items, 1)
	assert.Equal(t, "temp", page.Items[0].Items[0].ID)
	assert.Equal(t, "gauge", page.Items[0].Items[0].Type)
	assert.NotNil(t, view.Globals)
}

func TestDashboard_ConnectSendsTree(t *testing.T) {
	var events []ClientEvent
	d, tr, _ := newTestDashboard(t, WithClientListener(func(e ClientEvent) {
		events = append(events, e)
	}))

	d.ClientConnected("c1", "10.0.0.1:1234")
	d.ClientDisconnected("c1", "10.0.0.1:1234")

	sent := tr.to("c1")
	require.Len(t, sent, 1)
	assert.Equal(t, EventTreeUpdate, sent[0].Event)
	assert.JSONEq(t, `{"menu":[],"globals":[]}`, string(sent[0].Data))

	require.Len(t, events, 2)
	assert.Equal(t, ClientEventConnected, events[0].Kind)
	assert.Equal(t, ClientEventDisconnected, events[1].Kind)

	m := d.Metrics().GetMetrics()
	assert.Equal(t, int64(1), m.ClientsConnected)
	assert.Equal(t, int64(0), m.ActiveClients)
}

func TestDashboard_TreeBroadcastCoalesced(t *testing.T) {
	d, tr, _ := newTestDashboard(t)

	const n = 50
	d.locked(func(fx *effects) {
		for i := range n {
			c := menu.NewControl(menu.Props{"id": fmt.Sprintf("c%d", i), "type": "gauge"})
			_, err := d.tree.Add(climatePlacement(), c)
			require.NoError(t, err)
			d.broadcastTree(fx)
		}
	})

	require.Eventually(t, func() bool {
		return len(tr.events(EventTreeUpdate)) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	updates := tr.events(EventTreeUpdate)
	require.Len(t, updates, 1)
	assert.Empty(t, updates[0].Target)
	assert.Equal(t, n, strings.Count(string(updates[0].Data), `"type":"gauge"`))

	// Once flushed, the next change is pushed again.
	d.locked(d.broadcastTree)
	assert.Eventually(t, func() bool {
		return len(tr.events(EventTreeUpdate)) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), d.Metrics().GetMetrics().TreeBroadcasts)
}

func TestDashboard_RefreshRequest(t *testing.T) {
	d, tr, _ := newTestDashboard(t)

	d.ClientMessage("c1", EventRefreshRequest, nil)
	d.ClientMessage("c2", EventRefreshRequest, nil)

	require.Eventually(t, func() bool {
		return len(tr.events(EventTreeUpdate)) > 0
	}, time.Second, 5*time.Millisecond)
	updates := tr.events(EventTreeUpdate)
	assert.LessOrEqual(t, len(updates), 2)
	assert.Empty(t, updates[0].Target, "refresh reaches every client")
	assert.JSONEq(t, `{"menu":[],"globals":[]}`, string(updates[0].Data))
}

func TestDashboard_TabChange(t *testing.T) {
	var events []ClientEvent
	var mu sync.Mutex
	d, _, _ := newTestDashboard(t, WithClientListener(func(e ClientEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	_, err := d.Register(gauge("temp"))
	require.NoError(t, err)

	d.ClientMessage("c1", EventTabChange, json.RawMessage(`{"item":0,"page":0}`))
	d.ClientMessage("c1", EventTabChange, json.RawMessage(`{"item":0,"page":4}`))
	d.ClientMessage("c1", EventTabChange, json.RawMessage(`{"item":-1,"page":0}`))
	d.ClientMessage("c1", EventTabChange, json.RawMessage(`{"page":0}`))
	d.ClientMessage("c1", EventTabChange, json.RawMessage(`[0,0]`))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, ClientEventTabChanged, events[0].Kind)
	assert.Equal(t, "c1", events[0].ID)
	assert.Equal(t, Tab{Item: 0, Page: 0, Name: "Climate"}, events[0].Tab)
	assert.Equal(t, int64(1), d.Metrics().GetCustomCounters()["tab_change"])
}

func TestDashboard_UnknownClientEvent(t *testing.T) {
	d, tr, _ := newTestDashboard(t)

	d.ClientMessage("c1", "ui-audio", json.RawMessage(`"on"`))

	assert.Empty(t, tr.to("c1"))
	assert.Equal(t, int64(1), d.Metrics().GetCustomCounters()["unknown_client_event"])
}

func TestDashboard_Emit(t *testing.T) {
	d, tr, _ := newTestDashboard(t)

	d.Emit("notify", map[string]any{"text": "hi"})
	d.EmitTo(EventUpdateValue, Msg{"msg": Msg{"socketid": "c7", "payload": []any{1}}})
	d.EmitTo(EventUpdateValue, Msg{"socketid": "room-1", "value": 2})
	d.EmitTo(EventUpdateValue, Msg{"value": 3})

	broadcast := tr.to("")
	require.Len(t, broadcast, 2)
	assert.Equal(t, "notify", broadcast[0].Event)
	assert.JSONEq(t, `{"text":"hi"}`, string(broadcast[0].Data))
	assert.JSONEq(t, `{"value":3}`, string(broadcast[1].Data))

	addressed := tr.to("c7")
	require.Len(t, addressed, 1)
	assert.JSONEq(t, `{"msg":{"socketid":"c7","payload":[1]}}`, string(addressed[0].Data))
	require.Len(t, tr.to("room-1"), 1)
}

func TestDashboard_Replay(t *testing.T) {
	d, tr, mock := newTestDashboard(t)

	temp, err := d.Register(gauge("temp"))
	require.NoError(t, err)
	hum, err := d.Register(gauge("hum"))
	require.NoError(t, err)
	require.NoError(t, temp.Input(Msg{"payload": 21.5}))
	require.NoError(t, hum.Input(Msg{"payload": 40.0}))
	require.NoError(t, temp.Input(Msg{"payload": 22.0}))

	d.ClientMessage("c2", EventReplayRequest, nil)
	assert.Empty(t, tr.to("c2"), "replay waits for the delay")

	mock.Add(DefaultReplayDelay)
	assert.Eventually(t, func() bool {
		return len(tr.events(EventReplayDone)) == 1
	}, time.Second, 5*time.Millisecond)

	sent := tr.to("c2")
	require.Len(t, sent, 3)
	assert.Equal(t, EventUpdateValue, sent[0].Event)
	assert.Equal(t, "temp", sent[0].decode(t)["id"])
	assert.Equal(t, 22.0, sent[0].decode(t)["value"])
	assert.Equal(t, "hum", sent[1].decode(t)["id"])
	assert.Equal(t, EventReplayDone, sent[2].Event)
	assert.Equal(t, int64(1), d.Metrics().GetMetrics().Replays)
}

func TestDashboard_AddLink(t *testing.T) {
	d, _, _ := newTestDashboard(t)

	remove := d.AddLink("Docs", "https://example.com", "book", 0, "_blank")
	raw, err := d.Tree()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"link":"https://example.com"`)

	remove()
	raw, err = d.Tree()
	require.NoError(t, err)
	assert.JSONEq(t, `{"menu":[],"globals":[]}`, string(raw))
}

func TestDashboard_WriteTree(t *testing.T) {
	d, _, _ := newTestDashboard(t)
	_, err := d.Register(gauge("temp"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, d.WriteTree(&buf))

	out := buf.String()
	assert.Contains(t, out, "Home")
	assert.Contains(t, out, "/d/home/climate")
	assert.Contains(t, out, "temp gauge")
}
