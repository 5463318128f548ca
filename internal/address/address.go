// Package address resolves message routing keys against a control's topic
// pattern. A pattern may contain "*" (any run of characters) and a single
// "{x}" capture that names the instance the message is meant for.
package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoMatch is returned when a routing key does not fit the pattern.
var ErrNoMatch = errors.New("address: routing key does not match pattern")

var placeholder = regexp.MustCompile(`(?i)\\\{x\\\}`)

// Pattern is a compiled topic pattern.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// Compile turns a topic pattern like "device/*/{x}/status" into a Pattern.
// Everything except "*" and "{x}" matches literally.
func Compile(pattern string) (*Pattern, error) {
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*`, `.*`)
	expr = placeholder.ReplaceAllLiteralString(expr, `([\w. ]+)`)
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("address: compile %q: %w", pattern, err)
	}
	return &Pattern{source: pattern, re: re}, nil
}

func (p *Pattern) String() string { return p.source }

// Instance returns the text captured by {x}. A pattern without a capture
// yields "" for any matching key.
func (p *Pattern) Instance(key string) (string, error) {
	m := p.re.FindStringSubmatch(key)
	if m == nil {
		return "", fmt.Errorf("%w: %q against %q", ErrNoMatch, key, p.source)
	}
	if len(m) < 2 {
		return "", nil
	}
	return m[1], nil
}

// Resolve returns the effective id "<id>.<instance>" for key.
func (p *Pattern) Resolve(id, key string) (string, error) {
	inst, err := p.Instance(key)
	if err != nil {
		return "", err
	}
	return id + "." + inst, nil
}
