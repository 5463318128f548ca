package livedash

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/livedash/internal/menu"
)

func TestHooksFor_Number(t *testing.T) {
	props := menu.Props{"min": 5.0}

	tests := []struct {
		name    string
		kind    Kind
		payload any
		step    float64
		want    any
	}{
		{name: "integer text", kind: KindNumber, payload: "42abc", want: 42.0},
		{name: "integer drops decimals", kind: KindNumber, payload: "3.9", want: 3.0},
		{name: "float text", kind: KindFloat, payload: " 3.25 units", want: 3.25},
		{name: "float with exponent", kind: KindFloat, payload: "1e3", want: 1000.0},
		{name: "native number", kind: KindNumber, payload: 7, want: 7.0},
		{name: "step rounding", kind: KindFloat, payload: "1.26", step: 0.5, want: 1.5},
		{name: "step keeps four decimals", kind: KindFloat, payload: 0.7, step: 0.1, want: 0.7},
		{name: "unparsable falls back to min", kind: KindNumber, payload: "abc", want: 5.0},
		{name: "boolean falls back to min", kind: KindFloat, payload: true, want: 5.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := HooksFor(tt.kind, props).Convert(tt.payload, nil, Msg{}, tt.step)
			require.NoError(t, err)
			assert.Equal(t, conversionFull, conv.kind)
			assert.Equal(t, tt.want, conv.value)
		})
	}
}

func TestHooksFor_NumberWithoutPayload(t *testing.T) {
	conv, err := HooksFor(KindNumber, menu.Props{}).Convert(nil, 3.0, Msg{}, 0)
	require.NoError(t, err)
	assert.Equal(t, conversionUnchanged, conv.kind)
}

func TestHooksFor_Table(t *testing.T) {
	h := HooksFor(KindTable, menu.Props{})

	out, err := h.BeforeEmit(Msg{"topic": "rows"}, []any{1})
	require.NoError(t, err)
	assert.Equal(t, Msg{"msg": Msg{"payload": []any{1}, "topic": "rows"}}, out)

	sent, err := h.BeforeSend(Msg{"payload": nil}, Msg{"msg": map[string]any{"payload": "row"}})
	require.NoError(t, err)
	assert.Equal(t, Msg{"payload": "row"}, sent)

	sent, err = h.BeforeSend(Msg{"payload": nil}, nil)
	require.NoError(t, err)
	assert.Nil(t, sent)
}

func TestDefaultHooks(t *testing.T) {
	conv, err := DefaultHooks.Convert("x", nil, Msg{}, 0)
	require.NoError(t, err)
	assert.Equal(t, Full("x"), conv)

	out, err := DefaultHooks.BeforeEmit(Msg{}, 1)
	require.NoError(t, err)
	assert.Equal(t, Msg{"value": 1}, out)

	back, err := DefaultHooks.ConvertBack("y")
	require.NoError(t, err)
	assert.Equal(t, "y", back)

	sent, err := DefaultHooks.BeforeSend(Msg{"payload": 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, sent)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "table", KindTable.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestSafely(t *testing.T) {
	boom := errors.New("boom")

	_, err := safely("convert", func() (int, error) { return 0, boom })
	var herr *HookError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "convert", herr.Hook)
	assert.ErrorIs(t, err, boom)

	_, err = safely("beforeSend", func() (Msg, error) { panic("nil map") })
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "beforeSend", herr.Hook)
	assert.Contains(t, err.Error(), "panic: nil map")

	v, err := safely("convertBack", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
