// Package menu holds the navigation tree of the dashboard: menu items, pages,
// groups and the controls registered under them.
//
// The tree is not safe for concurrent use. The owning dashboard serializes
// every mutation and every read.
package menu

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Node is a member of a child list: an Item, a Page or a Link.
type Node interface {
	NodeID() string
	SortOrder() float64
}

// Props is the configuration of a control as supplied by its flow node.
type Props map[string]any

// String returns the string value stored under key, or "".
func (p Props) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Float returns the numeric value stored under key. Strings are parsed the
// way a lenient float parser would, anything else yields 0.
func (p Props) Float(key string) float64 {
	return ToFloat(p[key])
}

// Has reports whether key is present, even with a nil value.
func (p Props) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Clone returns a shallow copy.
func (p Props) Clone() Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ToFloat converts JSON-ish numbers and numeric strings to float64.
func ToFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// Instance identifies one expansion of a dynamic page.
type Instance struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Control is a widget placed in a group.
type Control struct {
	Props    Props
	Instance *Instance
}

// NewControl wraps props. The order key is normalized to a float.
func NewControl(props Props) *Control {
	if props == nil {
		props = Props{}
	}
	props["order"] = props.Float("order")
	return &Control{Props: props}
}

// ID returns the control id.
func (c *Control) ID() string { return c.Props.String("id") }

// SortOrder implements ordering within a group.
func (c *Control) SortOrder() float64 { return c.Props.Float("order") }

// forInstance returns the per-instance variant used under a dynamic page.
func (c *Control) forInstance(inst Instance) *Control {
	props := c.Props.Clone()
	props["id"] = c.ID() + "." + inst.Number
	return &Control{Props: props, Instance: &inst}
}

func (c *Control) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Props)+1)
	for k, v := range c.Props {
		out[k] = v
	}
	if c.Instance != nil {
		out["instance"] = c.Instance
	}
	return json.Marshal(out)
}

// Group is a titled container of controls on a page.
type Group struct {
	ID       string     `json:"id"`
	Header   string     `json:"header"`
	Order    float64    `json:"order"`
	WidthLg  int        `json:"widthLg"`
	WidthMd  int        `json:"widthMd"`
	WidthSm  int        `json:"widthSm"`
	Controls []*Control `json:"items"`
}

func newGroup(cfg GroupConfig) *Group {
	return &Group{
		ID:       cfg.ID,
		Header:   cfg.Name,
		Order:    cfg.Order,
		WidthLg:  cfg.WidthLg,
		WidthMd:  cfg.WidthMd,
		WidthSm:  cfg.WidthSm,
		Controls: []*Control{},
	}
}

func (g *Group) SortOrder() float64 { return g.Order }

func (g *Group) apply(cfg GroupConfig) {
	g.Header = cfg.Name
	g.Order = cfg.Order
	g.WidthLg = cfg.WidthLg
	g.WidthMd = cfg.WidthMd
	g.WidthSm = cfg.WidthSm
}

// Page is a navigable page holding groups. Pages generated from a dynamic
// page template carry the Instance they were expanded for.
type Page struct {
	ID       string
	Title    string
	Icon     string
	Path     string
	Order    float64
	Disabled bool
	Hidden   bool
	Instance *Instance
	Groups   []*Group
}

func (p *Page) NodeID() string { return p.ID }
func (p *Page) SortOrder() float64 { return p.Order }
func (p *Page) isStale(c PageConfig) bool {
	return p.Title != c.Name || p.Icon != c.Icon || p.Disabled != c.Disabled || p.Hidden != c.Hidden
}

func (p *Page) groupByHeader(header string) *Group {
	for _, g := range p.Groups {
		if g.Header == header {
			return g
		}
	}
	return nil
}

func (p *Page) group(id string) (*Group, int) {
	for i, g := range p.Groups {
		if g.ID == id {
			return g, i
		}
	}
	return nil, -1
}

func (p *Page) MarshalJSON() ([]byte, error) {
	groups := p.Groups
	if groups == nil {
		groups = []*Group{}
	}
	return json.Marshal(struct {
		ID         string    `json:"id"`
		IsMenuPage bool      `json:"isMenuPage"`
		Order      float64   `json:"order"`
		Disabled   bool      `json:"disabled"`
		Hidden     bool      `json:"hidden"`
		Instance   *Instance `json:"instance,omitempty"`
		Items      []*Group  `json:"items"`
		Path       string    `json:"path"`
		Title      string    `json:"title"`
		Icon       string    `json:"icon,omitempty"`
		Class      string    `json:"class"`
		GroupTitle bool      `json:"groupTitle"`
		Submenu    []Node    `json:"submenu"`
	}{
		ID:         p.ID,
		IsMenuPage: true,
		Order:      p.Order,
		Disabled:   p.Disabled,
		Hidden:     p.Hidden,
		Instance:   p.Instance,
		Items:      groups,
		Path:       p.Path,
		Title:      p.Title,
		Icon:       p.Icon,
		Class:      "ml-menu",
		Submenu:    []Node{},
	})
}

// Item is a menu entry. Its children are nested items or pages, kept in one
// ordered list. Clients that expect the "items" and "submenu" views both
// receive that same list.
type Item struct {
	ID       string
	IsRoot   bool
	Title    string
	Icon     string
	Order    float64
	Disabled bool
	Hidden   bool
	Children []Node
}

func (it *Item) NodeID() string { return it.ID }
func (it *Item) SortOrder() float64 { return it.Order }

func (it *Item) isStale(c ItemConfig) bool {
	return it.Title != c.Name || it.Icon != c.Icon || it.Disabled != c.Disabled || it.Hidden != c.Hidden
}

func (it *Item) MarshalJSON() ([]byte, error) {
	children := it.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(struct {
		ID         string  `json:"id"`
		IsRoot     bool    `json:"isRoot"`
		Order      float64 `json:"order"`
		Disabled   bool    `json:"disabled"`
		Hidden     bool    `json:"hidden"`
		Items      []Node  `json:"items"`
		Path       string  `json:"path"`
		Title      string  `json:"title"`
		Icon       string  `json:"icon,omitempty"`
		Class      string  `json:"class"`
		GroupTitle bool    `json:"groupTitle"`
		Submenu    []Node  `json:"submenu"`
	}{
		ID:       it.ID,
		IsRoot:   it.IsRoot,
		Order:    it.Order,
		Disabled: it.Disabled,
		Hidden:   it.Hidden,
		Items:    children,
		Title:    it.Title,
		Icon:     it.Icon,
		Class:    "ml-sub-menu",
		Submenu:  children,
	})
}

// Link is an external link shown at the top level of the menu.
type Link struct {
	Name   string  `json:"name"`
	URL    string  `json:"link"`
	Icon   string  `json:"icon"`
	Order  float64 `json:"order"`
	Target string  `json:"target,omitempty"`
}

func (l *Link) NodeID() string { return "link:" + l.URL }
func (l *Link) SortOrder() float64 { return l.Order }
