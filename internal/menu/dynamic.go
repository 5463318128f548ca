package menu

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
)

var pageTemplate = regexp.MustCompile(`^(.*)\{x\}(.*)$`)

// expansionSettings is what a dynamic page was last expanded with. A change
// in any field regenerates the page's pseudo-pages.
type expansionSettings struct {
	Numbers []string
	Names   []string
	Prefix  string
	Suffix  string
}

func newExpansionSettings(pc PageConfig) (*expansionSettings, error) {
	m := pageTemplate.FindStringSubmatch(pc.Expression)
	if m == nil {
		return nil, fmt.Errorf("page %q: %w", pc.ID, ErrInvalidTemplate)
	}
	instances, err := ExpandInstances(pc.Instances)
	if err != nil {
		return nil, fmt.Errorf("page %q: %w", pc.ID, err)
	}
	s := &expansionSettings{Prefix: m[1], Suffix: m[2]}
	for _, inst := range instances {
		s.Numbers = append(s.Numbers, inst.Number)
		s.Names = append(s.Names, inst.Name)
	}
	return s, nil
}

func (s expansionSettings) title(i int) string {
	return s.Prefix + s.Names[i] + s.Suffix
}

// expansion records an expanded dynamic page together with the groups and
// controls already placed on its pseudo-pages, keyed by their original ids.
type expansion struct {
	settings expansionSettings
	groups   map[string]bool
	controls map[string]bool
}

// pseudoPrefix is the prefix shared by every node generated from id.
func pseudoPrefix(id string) string { return id + "." }

func isPseudoOf(nodeID, id string) bool {
	return strings.HasPrefix(nodeID, pseudoPrefix(id))
}

func removePseudo(nodes []Node, pageID string) []Node {
	return slices.DeleteFunc(nodes, func(n Node) bool {
		p, ok := n.(*Page)
		return ok && isPseudoOf(p.ID, pageID)
	})
}

// Expanded reports whether pageID currently has generated pseudo-pages.
func (t *Tree) Expanded(pageID string) bool {
	_, ok := t.pages[pageID]
	return ok
}

func (t *Tree) addDynamic(owner *Item, path string, pathChanged bool, p Placement, s expansionSettings, c *Control) func() {
	pc, gc := p.Page, p.Group
	ctlID := c.ID()

	if exp, ok := t.pages[pc.ID]; ok && (pathChanged || !reflect.DeepEqual(exp.settings, s)) {
		owner.Children = removePseudo(owner.Children, pc.ID)
		delete(t.pages, pc.ID)
	}

	if exp, ok := t.pages[pc.ID]; ok {
		for _, n := range owner.Children {
			page, ok := n.(*Page)
			if !ok || page.Instance == nil || !isPseudoOf(page.ID, pc.ID) {
				continue
			}
			if !exp.groups[gc.ID] {
				g := newPseudoGroup(gc, *page.Instance)
				g.Controls = append(g.Controls, c.forInstance(*page.Instance))
				page.Groups = append(page.Groups, g)
				sortByOrder(page.Groups)
				continue
			}
			for _, g := range page.Groups {
				if !isPseudoOf(g.ID, gc.ID) {
					continue
				}
				g.apply(gc)
				if !exp.controls[ctlID] {
					g.Controls = append(g.Controls, c.forInstance(*page.Instance))
					sortByOrder(g.Controls)
				}
			}
			sortByOrder(page.Groups)
		}
		exp.groups[gc.ID] = true
		exp.controls[ctlID] = true
	} else {
		owner.Children = removePseudo(owner.Children, pc.ID)
		for i, num := range s.Numbers {
			inst := Instance{Name: s.Names[i], Number: num}
			title := s.title(i)
			g := newPseudoGroup(gc, inst)
			g.Controls = append(g.Controls, c.forInstance(inst))
			owner.Children = append(owner.Children, &Page{
				ID:       pc.ID + "." + num,
				Title:    title,
				Path:     "/d/" + path + slug(title),
				Order:    pc.Order + float64(i)/1000,
				Disabled: pc.Disabled,
				Hidden:   pc.Hidden,
				Instance: &inst,
				Groups:   []*Group{g},
			})
		}
		t.pages[pc.ID] = &expansion{
			settings: s,
			groups:   map[string]bool{gc.ID: true},
			controls: map[string]bool{ctlID: true},
		}
	}
	sortByOrder(owner.Children)

	chain := slices.Clone(p.Items)
	return func() { t.removeDynamic(chain, pc.ID, gc.ID, ctlID) }
}

func newPseudoGroup(gc GroupConfig, inst Instance) *Group {
	g := newGroup(gc)
	g.ID = gc.ID + "." + inst.Number
	return g
}

func (t *Tree) removeDynamic(chain []ItemConfig, pageID, groupID, ctlID string) {
	exp, ok := t.pages[pageID]
	if !ok || !exp.controls[ctlID] {
		return
	}
	delete(exp.controls, ctlID)

	owner := t.FindItem(chain[0].ID)
	if owner == nil {
		return
	}
	groupEmptied := false
	owner.Children = slices.DeleteFunc(owner.Children, func(n Node) bool {
		page, ok := n.(*Page)
		if !ok || !isPseudoOf(page.ID, pageID) {
			return false
		}
		page.Groups = slices.DeleteFunc(page.Groups, func(g *Group) bool {
			if !isPseudoOf(g.ID, groupID) {
				return false
			}
			g.Controls = slices.DeleteFunc(g.Controls, func(c *Control) bool {
				return isPseudoOf(c.ID(), ctlID)
			})
			if len(g.Controls) == 0 {
				groupEmptied = true
				return true
			}
			return false
		})
		return len(page.Groups) == 0
	})
	if groupEmptied {
		delete(exp.groups, groupID)
	}
	if !slices.ContainsFunc(owner.Children, func(n Node) bool { return isPseudoOf(n.NodeID(), pageID) }) {
		delete(t.pages, pageID)
	}
	t.prune(chain)
}
