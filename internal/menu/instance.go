package menu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// InstanceRange is one row of a dynamic page's instance table. Both fields
// accept comma or space separated tokens and numeric "a-b" ranges.
type InstanceRange struct {
	Name   string `json:"name" yaml:"name"`
	Number string `json:"number" yaml:"number"`
}

var tokenSeparator = regexp.MustCompile(`[ ,]+`)

// ExpandRange explodes a range expression into its tokens, in order.
// "1-3,5" yields ["1" "2" "3" "5"]. Ranges are normalized so that "3-1"
// behaves like "1-3". Tokens that are not a pair of integers around a dash
// ("Living-Room", "-3") are kept literally.
func ExpandRange(expr string) []string {
	var out []string
	for _, tok := range tokenSeparator.Split(strings.TrimSpace(expr), -1) {
		if tok == "" {
			continue
		}
		out = append(out, explode(tok)...)
	}
	return out
}

func explode(tok string) []string {
	i := strings.Index(tok, "-")
	if i < 0 {
		return []string{tok}
	}
	a, errA := strconv.Atoi(tok[:i])
	b, errB := strconv.Atoi(tok[i+1:])
	if errA != nil || errB != nil {
		return []string{tok}
	}
	lo, hi := min(a, b), max(a, b)
	out := make([]string, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		out = append(out, strconv.Itoa(n))
	}
	return out
}

// ExpandInstances expands every row and pairs names with numbers by
// position. The two lists must have the same length.
func ExpandInstances(ranges []InstanceRange) ([]Instance, error) {
	var names, numbers []string
	for _, r := range ranges {
		names = append(names, ExpandRange(r.Name)...)
		numbers = append(numbers, ExpandRange(r.Number)...)
	}
	if len(numbers) == 0 {
		return nil, ErrNoInstances
	}
	if len(names) != len(numbers) {
		return nil, fmt.Errorf("%w: %d names for %d numbers", ErrInstanceMismatch, len(names), len(numbers))
	}
	out := make([]Instance, len(numbers))
	for i := range numbers {
		out[i] = Instance{Name: names[i], Number: numbers[i]}
	}
	return out, nil
}
