package livedash

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/livefir/livedash/internal/menu"
)

type conversionKind int

const (
	conversionUnchanged conversionKind = iota
	conversionFull
	conversionIncremental
)

// Conversion is the result of Hooks.Convert. The zero value is Unchanged.
type Conversion struct {
	kind  conversionKind
	point any
	value any
}

// Full reports v as the new full dataset.
func Full(v any) Conversion { return Conversion{kind: conversionFull, value: v} }

// Unchanged keeps the previous dataset but still counts as a new point, so
// the message is pushed.
func Unchanged() Conversion { return Conversion{kind: conversionUnchanged} }

// Incremental reports a point distinct from the updated full dataset, as
// cumulative widgets such as charts do.
func Incremental(point, updated any) Conversion {
	return Conversion{kind: conversionIncremental, point: point, value: updated}
}

// Hooks adapt values between flow messages, client payloads and downstream
// messages. Implementations must not block.
type Hooks interface {
	// Convert turns an inbound payload into the control's dataset.
	Convert(payload, previous any, msg Msg, step float64) (Conversion, error)
	// BeforeEmit shapes a value for the wire.
	BeforeEmit(msg Msg, value any) (Msg, error)
	// ConvertBack is the inverse of Convert.
	ConvertBack(value any) (any, error)
	// BeforeSend shapes the message forwarded downstream. orig is the client
	// message when the value came from a client. A nil result keeps msg.
	BeforeSend(msg, orig Msg) (Msg, error)
}

// HookFuncs implements Hooks from optional functions. A nil function
// behaves like DefaultHooks.
type HookFuncs struct {
	ConvertFunc     func(payload, previous any, msg Msg, step float64) (Conversion, error)
	BeforeEmitFunc  func(msg Msg, value any) (Msg, error)
	ConvertBackFunc func(value any) (any, error)
	BeforeSendFunc  func(msg, orig Msg) (Msg, error)
}

func (h HookFuncs) Convert(payload, previous any, msg Msg, step float64) (Conversion, error) {
	if h.ConvertFunc == nil {
		return Full(payload), nil
	}
	return h.ConvertFunc(payload, previous, msg, step)
}

func (h HookFuncs) BeforeEmit(msg Msg, value any) (Msg, error) {
	if h.BeforeEmitFunc == nil {
		return Msg{"value": value}, nil
	}
	return h.BeforeEmitFunc(msg, value)
}

func (h HookFuncs) ConvertBack(value any) (any, error) {
	if h.ConvertBackFunc == nil {
		return value, nil
	}
	return h.ConvertBackFunc(value)
}

func (h HookFuncs) BeforeSend(msg, orig Msg) (Msg, error) {
	if h.BeforeSendFunc == nil {
		return nil, nil
	}
	return h.BeforeSendFunc(msg, orig)
}

// DefaultHooks passes values through and wraps emitted values as
// {"value": v}.
var DefaultHooks Hooks = HookFuncs{}

// Kind selects a built-in set of hooks.
type Kind int

const (
	KindPassthrough Kind = iota
	// KindNumber parses payloads as integers.
	KindNumber
	// KindFloat parses payloads as decimals.
	KindFloat
	// KindTable wraps values as {msg: {payload, topic}} and forwards the
	// client's message downstream.
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindPassthrough:
		return "passthrough"
	case KindNumber:
		return "number"
	case KindFloat:
		return "float"
	case KindTable:
		return "table"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// HooksFor returns the built-in hooks for kind. props is the control
// configuration; numeric kinds read "min" from it.
func HooksFor(kind Kind, props menu.Props) Hooks {
	switch kind {
	case KindNumber, KindFloat:
		decimals := kind == KindFloat
		return HookFuncs{
			ConvertFunc: func(payload, _ any, _ Msg, step float64) (Conversion, error) {
				if payload == nil {
					return Unchanged(), nil
				}
				return Full(toNumber(decimals, props, payload, step)), nil
			},
		}
	case KindTable:
		return HookFuncs{
			BeforeEmitFunc: func(msg Msg, value any) (Msg, error) {
				return Msg{"msg": Msg{"payload": value, "topic": msg["topic"]}}, nil
			},
			BeforeSendFunc: func(_, orig Msg) (Msg, error) {
				if orig == nil {
					return nil, nil
				}
				switch m := orig["msg"].(type) {
				case Msg:
					return m, nil
				case map[string]any:
					return Msg(m), nil
				}
				return nil, nil
			},
		}
	}
	return DefaultHooks
}

var (
	leadingInt   = regexp.MustCompile(`^[-+]?\d+`)
	leadingFloat = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)
)

// toNumber parses the leading number of input's text form. Unparsable
// input yields the control's "min" setting. A non-zero step snaps the value
// to the nearest multiple, kept to four decimals.
func toNumber(decimals bool, props menu.Props, input any, step float64) any {
	var n float64
	switch v := input.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	default:
		s := strings.TrimSpace(fmt.Sprint(v))
		re := leadingInt
		if decimals {
			re = leadingFloat
		}
		f, err := strconv.ParseFloat(re.FindString(s), 64)
		if err != nil {
			n = math.NaN()
		} else {
			n = f
		}
	}
	if step != 0 {
		n = math.Round(math.Round(n/step)*step*10000) / 10000
	}
	if math.IsNaN(n) {
		return props["min"]
	}
	return n
}

// safely runs a hook, turning a panic into a HookError.
func safely[T any](hook string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Hook: hook, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = fn()
	if err != nil {
		var zero T
		return zero, &HookError{Hook: hook, Err: err}
	}
	return out, nil
}
