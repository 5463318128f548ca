package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-logr/logr"

	"github.com/livefir/livedash"
	"github.com/livefir/livedash/internal/config"
	"github.com/livefir/livedash/internal/menu"
)

// demo stands in for a flow: it registers a handful of controls and feeds
// them fake readings.
type demo struct {
	cfg   config.Demo
	log   logr.Logger
	rooms []string

	outside  *livedash.Registration
	humidity *livedash.Registration
	status   *livedash.Registration
	heating  *livedash.Registration
	roomTemp *livedash.Registration
	closers  []func()
}

var homeItem = menu.ItemConfig{ID: "home", Name: "Home", Icon: "home", PathName: "home", Order: 1}

func newDemo(dash *livedash.Dashboard, cfg config.Demo, log logr.Logger) (*demo, error) {
	d := &demo{cfg: cfg, log: log, rooms: menu.ExpandRange(cfg.Rooms)}

	overview := menu.Placement{
		Items: []menu.ItemConfig{homeItem},
		Page:  menu.PageConfig{ID: "overview", Name: "Overview", Icon: "dashboard", PathName: "overview", Order: 1},
		Group: menu.GroupConfig{ID: "weather", Name: "Weather", WidthLg: 6, WidthMd: 6, WidthSm: 12},
	}
	controls := menu.Placement{
		Items: overview.Items,
		Page:  overview.Page,
		Group: menu.GroupConfig{ID: "controls", Name: "Controls", Order: 2, WidthLg: 6, WidthMd: 6, WidthSm: 12},
	}
	rooms := menu.Placement{
		Items: []menu.ItemConfig{homeItem},
		Page: menu.PageConfig{
			ID:         "rooms",
			Name:       "Rooms",
			Icon:       "meeting_room",
			PathName:   "rooms",
			Order:      2,
			Dynamic:    true,
			Expression: "Room {x}",
			Instances:  []menu.InstanceRange{{Name: cfg.Rooms, Number: cfg.Rooms}},
		},
		Group: menu.GroupConfig{ID: "climate", Name: "Climate", WidthLg: 4, WidthMd: 6, WidthSm: 12},
	}

	var err error
	register := func(opts livedash.RegisterOptions) *livedash.Registration {
		if err != nil {
			return nil
		}
		var r *livedash.Registration
		r, err = dash.Register(opts)
		return r
	}

	d.outside = register(livedash.RegisterOptions{
		ID:        "outside",
		Kind:      livedash.KindFloat,
		Control:   menu.Props{"type": "gauge", "label": "Outside {{msg.topic}}", "units": "°C", "min": -20, "max": 40, "step": 0.1, "order": 1},
		Placement: overview,
	})
	d.humidity = register(livedash.RegisterOptions{
		ID:        "humidity",
		Kind:      livedash.KindNumber,
		Control:   menu.Props{"type": "gauge", "label": "Humidity", "units": "%", "min": 0, "max": 100, "order": 2},
		Placement: overview,
	})
	d.status = register(livedash.RegisterOptions{
		ID:        "status",
		Control:   menu.Props{"type": "text", "label": "Status", "format": "{{value}} ({{msg.city}})", "color": "", "order": 3},
		Placement: overview,
	})
	d.heating = register(livedash.RegisterOptions{
		ID:        "heating",
		Control:   menu.Props{"type": "switch", "label": "Heating", "order": 1},
		Placement: controls,
		Send: func(m livedash.Msg) {
			log.Info("Heating switched", "payload", m["payload"], "client", m["socketid"])
			dash.Emit("notify", livedash.Msg{"message": fmt.Sprintf("Heating switched to %v", m["payload"])})
		},
	})
	d.roomTemp = register(livedash.RegisterOptions{
		ID:        "room-temp",
		Kind:      livedash.KindFloat,
		Control:   menu.Props{"type": "gauge", "label": "Temperature", "units": "°C", "min": 10, "max": 30, "step": 0.5, "topicPattern": "room/{x}/temperature"},
		Placement: rooms,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	d.closers = append(d.closers, dash.AddLink("Flow editor", "http://localhost:1880/", "open_in_new", 0, "_blank"))
	return d, nil
}

// Run publishes readings every interval until ctx is done.
func (d *demo) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		d.tick()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *demo) tick() {
	d.input(d.outside, livedash.Msg{
		"payload": fmt.Sprintf("%.2f", gofakeit.Float64Range(-5, 30)),
		"topic":   gofakeit.City(),
	})
	d.input(d.humidity, livedash.Msg{"payload": gofakeit.Number(30, 80)})
	d.input(d.status, livedash.Msg{
		"payload": gofakeit.HipsterWord(),
		"city":    gofakeit.City(),
		"enabled": gofakeit.Bool(),
	})
	for _, room := range d.rooms {
		d.input(d.roomTemp, livedash.Msg{
			"payload": gofakeit.Float64Range(17, 24),
			"topic":   "room/" + room + "/temperature",
		})
	}
}

func (d *demo) input(r *livedash.Registration, msg livedash.Msg) {
	if err := r.Input(msg); err != nil {
		d.log.Error(err, "Input failed", "control", r.ID())
	}
}

// Close removes every demo control.
func (d *demo) Close() {
	for _, r := range []*livedash.Registration{d.outside, d.humidity, d.status, d.heating, d.roomTemp} {
		if r != nil {
			r.Close()
		}
	}
	for _, c := range d.closers {
		c()
	}
}
