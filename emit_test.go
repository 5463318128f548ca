package livedash

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/livefir/livedash/internal/menu"
)

func TestShallowEqual(t *testing.T) {
	shared := map[string]any{"a": 1}
	list := []any{1, 2}

	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil and zero", nil, 0, false},
		{"same string", "on", "on", true},
		{"different string", "on", "off", false},
		{"numbers across types", 3, 3.0, true},
		{"json number", json.Number("2.5"), 2.5, true},
		{"number and string", 1, "1", false},
		{"bool", true, true, true},
		{"same map", shared, shared, true},
		{"equal maps are distinct datasets", map[string]any{"a": 1}, map[string]any{"a": 1}, false},
		{"same slice", list, list, true},
		{"resliced", list, list[:1], false},
		{"struct", struct{ X int }{1}, struct{ X int }{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shallowEqual(tt.a, tt.b))
		})
	}
}

func TestAddTemplateFields(t *testing.T) {
	props := menu.Props{
		"label":  "{{msg.payload.temp}} in {{msg.topic}}",
		"color":  "{{colour}}",
		"format": "plain",
		"units":  "{{missing}}",
	}
	msg := Msg{
		"payload": map[string]any{"temp": 21.5},
		"topic":   "kitchen",
		"colour":  "red",
	}
	out := Msg{"value": 21.5}

	addTemplateFields(out, props, msg)

	assert.Equal(t, Msg{
		"value":  21.5,
		"colour": "red",
		"msg": Msg{
			"payload": map[string]any{"temp": 21.5},
			"topic":   "kitchen",
		},
	}, out)

	// copies are detached from the inbound message
	msg["payload"].(map[string]any)["temp"] = 99.0
	assert.Equal(t, 21.5, out["msg"].(Msg)["payload"].(map[string]any)["temp"])
}

func TestAddTemplateFields_KeepsExisting(t *testing.T) {
	out := Msg{"msg": map[string]any{"topic": "mine"}, "colour": "blue"}
	addTemplateFields(out, menu.Props{"label": "{{msg.topic}} {{colour}}"}, Msg{"topic": "theirs", "colour": "red"})

	assert.Equal(t, "mine", out["msg"].(map[string]any)["topic"])
	assert.Equal(t, "blue", out["colour"])
}

func TestBinaryString(t *testing.T) {
	assert.Equal(t, "ÿ\u0000A", binaryString([]byte{0xff, 0x00, 'A'}))
}

func TestTruthy(t *testing.T) {
	assert.False(t, truthy(nil))
	assert.False(t, truthy(""))
	assert.False(t, truthy(0))
	assert.False(t, truthy(false))
	assert.True(t, truthy("no"))
	assert.True(t, truthy(1.5))
	assert.True(t, truthy(map[string]any{}))
}
