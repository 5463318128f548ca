package menu

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ItemConfig is the flow-side configuration of a menu item.
type ItemConfig struct {
	ID       string
	Parent   string // enclosing menu item, empty for a root item
	Name     string
	Icon     string
	PathName string
	Order    float64
	Disabled bool
	Hidden   bool
}

// PageConfig is the flow-side configuration of a page. A dynamic page
// expands into one page per instance; Expression must then contain {x},
// which is replaced by each instance name to form the page title.
type PageConfig struct {
	ID         string
	Name       string
	Icon       string
	PathName   string
	Order      float64
	Disabled   bool
	Hidden     bool
	Dynamic    bool
	Expression string
	Instances  []InstanceRange
}

// GroupConfig is the flow-side configuration of a group.
type GroupConfig struct {
	ID      string
	Name    string
	Order   float64
	WidthLg int
	WidthMd int
	WidthSm int
}

// Placement locates a control in the tree. Items runs from the menu item
// that owns the page up to the root item.
type Placement struct {
	Items []ItemConfig
	Page  PageConfig
	Group GroupConfig
}

// check verifies that the chain links up to a root without gaps.
func (p Placement) check() error {
	if len(p.Items) == 0 || p.Page.ID == "" || p.Group.ID == "" {
		return ErrNotReady
	}
	last := len(p.Items) - 1
	for i, it := range p.Items {
		if it.ID == "" {
			return ErrNotReady
		}
		if i < last && it.Parent != p.Items[i+1].ID {
			return ErrNotReady
		}
	}
	if p.Items[last].Parent != "" {
		return ErrNotReady
	}
	return nil
}

// View is the wire shape of the whole tree.
type View struct {
	Menu    []Node     `json:"menu"`
	Globals []*Control `json:"globals"`
}

// Tree is the navigation tree plus the bookkeeping of dynamic pages.
type Tree struct {
	roots   []Node
	globals []*Control
	pages   map[string]*expansion
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{pages: make(map[string]*expansion)}
}

// Roots returns the top-level list. Callers must not modify it.
func (t *Tree) Roots() []Node { return t.roots }

// Globals returns the global template controls.
func (t *Tree) Globals() []*Control { return t.globals }

// View returns the tree in its wire shape.
func (t *Tree) View() View {
	v := View{Menu: t.roots, Globals: t.globals}
	if v.Menu == nil {
		v.Menu = []Node{}
	}
	if v.Globals == nil {
		v.Globals = []*Control{}
	}
	return v
}

// TabName returns the title of the child at index page of the root node at
// index item, the way clients address the tab they switched to.
func (t *Tree) TabName(item, page int) (string, bool) {
	if item < 0 || item >= len(t.roots) {
		return "", false
	}
	it, ok := t.roots[item].(*Item)
	if !ok || page < 0 || page >= len(it.Children) {
		return "", false
	}
	switch n := it.Children[page].(type) {
	case *Page:
		return n.Title, true
	case *Item:
		return n.Title, true
	}
	return "", false
}

// FindItem searches the whole tree for a menu item. Pages are not entered.
func (t *Tree) FindItem(id string) *Item {
	return findItemDeep(t.roots, id)
}

func findItemDeep(nodes []Node, id string) *Item {
	for _, n := range nodes {
		it, ok := n.(*Item)
		if !ok {
			continue
		}
		if it.ID == id {
			return it
		}
		if found := findItemDeep(it.Children, id); found != nil {
			return found
		}
	}
	return nil
}

func findItem(nodes []Node, id string) (*Item, int) {
	for i, n := range nodes {
		if it, ok := n.(*Item); ok && it.ID == id {
			return it, i
		}
	}
	return nil, -1
}

func findPage(nodes []Node, id string) (*Page, int) {
	for i, n := range nodes {
		if p, ok := n.(*Page); ok && p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

func removeNode(nodes []Node, id string) []Node {
	return slices.DeleteFunc(nodes, func(n Node) bool { return n.NodeID() == id })
}

// AddLink adds an external link at the top level and returns its remover.
func (t *Tree) AddLink(l *Link) func() {
	if l.Order == 0 {
		l.Order = 1
	}
	t.roots = append(t.roots, l)
	sortByOrder(t.roots)
	return func() {
		t.roots = slices.DeleteFunc(t.roots, func(n Node) bool { return n == Node(l) })
	}
}

// AddGlobal adds a global template control and returns its remover.
func (t *Tree) AddGlobal(c *Control) func() {
	t.globals = append(t.globals, c)
	return func() {
		t.globals = slices.DeleteFunc(t.globals, func(g *Control) bool { return g == c })
	}
}

// IsGlobal reports whether props describe a global template.
func IsGlobal(props Props) bool {
	return props.String("type") == "template" && props.String("templateScope") == "global"
}

// Add places c according to p and returns the function that takes it out
// again. Nothing is mutated when an error is returned. Controls without a
// string type are ignored.
func (t *Tree) Add(p Placement, c *Control) (func(), error) {
	if _, ok := c.Props["type"].(string); !ok {
		return func() {}, nil
	}
	if IsGlobal(c.Props) {
		return t.AddGlobal(c), nil
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	var settings *expansionSettings
	if p.Page.Dynamic {
		s, err := newExpansionSettings(p.Page)
		if err != nil {
			return nil, err
		}
		settings = s
	}

	owner, path, pathChanged := t.walk(p.Items)
	if settings != nil {
		return t.addDynamic(owner, path, pathChanged, p, *settings, c), nil
	}
	return t.addStatic(owner, path, pathChanged, p, c), nil
}

// walk creates or refreshes every item of the chain, root first, and returns
// the owning item, the accumulated path and whether any item was replaced.
func (t *Tree) walk(chain []ItemConfig) (*Item, string, bool) {
	var (
		owner   *Item
		path    string
		changed bool
	)
	last := len(chain) - 1
	for i := last; i >= 0; i-- {
		cfg := chain[i]
		path += cfg.PathName + "/"

		siblings := &t.roots
		if i != last {
			siblings = &t.FindItem(cfg.Parent).Children
		}

		found, idx := findItem(*siblings, cfg.ID)
		switch {
		case found == nil:
			found = newItem(cfg, i == last)
			*siblings = append(*siblings, found)
			sortByOrder(*siblings)
		case found.isStale(cfg):
			// Replace rather than mutate: consumers diff by node identity.
			repl := newItem(cfg, i == last)
			repl.Children = found.Children
			(*siblings)[idx] = repl
			sortByOrder(*siblings)
			found = repl
			changed = true
		}
		owner = found
	}
	return owner, path, changed
}

func newItem(cfg ItemConfig, root bool) *Item {
	return &Item{
		ID:       cfg.ID,
		IsRoot:   root,
		Title:    cfg.Name,
		Icon:     cfg.Icon,
		Order:    cfg.Order,
		Disabled: cfg.Disabled,
		Hidden:   cfg.Hidden,
		Children: []Node{},
	}
}

func newPage(cfg PageConfig, path string) *Page {
	return &Page{
		ID:       cfg.ID,
		Title:    cfg.Name,
		Icon:     cfg.Icon,
		Path:     "/d/" + path + cfg.PathName,
		Order:    cfg.Order,
		Disabled: cfg.Disabled,
		Hidden:   cfg.Hidden,
		Groups:   []*Group{},
	}
}

// slug lowercases a title and drops its spaces for use in a path.
func slug(title string) string {
	return cases.Lower(language.Und).String(strings.ReplaceAll(title, " ", ""))
}

func (t *Tree) addStatic(owner *Item, path string, pathChanged bool, p Placement, c *Control) func() {
	pc := p.Page
	if _, ok := t.pages[pc.ID]; ok {
		// The page was dynamic before.
		owner.Children = removePseudo(owner.Children, pc.ID)
		delete(t.pages, pc.ID)
	}

	page, idx := findPage(owner.Children, pc.ID)
	if page != nil && (pathChanged || page.isStale(pc)) {
		repl := newPage(pc, path)
		repl.Groups = page.Groups
		owner.Children[idx] = repl
		page = repl
	}
	if page == nil {
		page = newPage(pc, path)
		owner.Children = append(owner.Children, page)
	}

	group := page.groupByHeader(p.Group.Name)
	if group == nil {
		group = newGroup(p.Group)
		page.Groups = append(page.Groups, group)
	}
	group.Controls = append(group.Controls, c)
	sortByOrder(group.Controls)
	group.Order = p.Group.Order
	sortByOrder(page.Groups)
	sortByOrder(owner.Children)

	chain := slices.Clone(p.Items)
	pageID, groupID := page.ID, group.ID
	return func() { t.removeStatic(chain, pageID, groupID, c) }
}

// removeStatic looks every node up again by id: items and pages may have
// been replaced since the control was added.
func (t *Tree) removeStatic(chain []ItemConfig, pageID, groupID string, c *Control) {
	owner := t.FindItem(chain[0].ID)
	if owner == nil {
		return
	}
	page, pidx := findPage(owner.Children, pageID)
	if page == nil {
		return
	}
	group, gidx := page.group(groupID)
	if group == nil {
		return
	}
	i := slices.Index(group.Controls, c)
	if i < 0 {
		return
	}
	group.Controls = slices.Delete(group.Controls, i, i+1)
	if len(group.Controls) > 0 {
		return
	}
	page.Groups = slices.Delete(page.Groups, gidx, gidx+1)
	if len(page.Groups) > 0 {
		return
	}
	owner.Children = slices.Delete(owner.Children, pidx, pidx+1)
	t.prune(chain)
}

// prune removes empty items from the owner upward and stops at the first
// item that still has children.
func (t *Tree) prune(chain []ItemConfig) {
	last := len(chain) - 1
	for i, cfg := range chain {
		item := t.FindItem(cfg.ID)
		if item == nil || len(item.Children) > 0 {
			return
		}
		if i == last {
			t.roots = removeNode(t.roots, cfg.ID)
			return
		}
		parent := t.FindItem(cfg.Parent)
		if parent == nil {
			return
		}
		parent.Children = removeNode(parent.Children, cfg.ID)
	}
}
