package menu

import "errors"

var (
	// ErrNotReady is returned when the ancestor chain of a control is
	// incomplete. The tree is left untouched; the caller may retry once the
	// missing configuration exists.
	ErrNotReady = errors.New("menu: ancestor chain incomplete")

	// ErrInvalidTemplate is returned when a dynamic page expression lacks
	// the {x} placeholder.
	ErrInvalidTemplate = errors.New("menu: dynamic page expression has no {x} placeholder")

	// ErrNoInstances is returned when a dynamic page expands to nothing.
	ErrNoInstances = errors.New("menu: dynamic page has no instances")

	// ErrInstanceMismatch is returned when instance names and numbers do
	// not pair up.
	ErrInstanceMismatch = errors.New("menu: instance names and numbers differ in count")
)
