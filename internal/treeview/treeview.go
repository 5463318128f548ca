// Package treeview renders the menu tree as indented text for operators.
package treeview

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/livefir/livedash/internal/menu"
)

// Theme holds the styles used for each kind of row.
type Theme struct {
	Branch  lipgloss.Style
	Item    lipgloss.Style
	Page    lipgloss.Style
	Group   lipgloss.Style
	Control lipgloss.Style
	Muted   lipgloss.Style
}

// NewTheme builds the default theme on r. Pass the renderer of the output
// the tree is written to so colors are dropped on plain files.
func NewTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		Branch:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "240"}),
		Item:    r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "75"}),
		Page:    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "114"}),
		Group:   r.NewStyle().Italic(true),
		Control: r.NewStyle(),
		Muted:   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "243"}),
	}
}

// String renders v with theme, one tree per menu root.
func String(v menu.View, theme Theme) string {
	var sb strings.Builder
	write := func(t *tree.Tree) {
		sb.WriteString(t.EnumeratorStyle(theme.Branch.PaddingRight(1)).String())
		sb.WriteByte('\n')
	}
	for _, n := range v.Menu {
		write(nodeTree(n, theme))
	}
	if len(v.Globals) > 0 {
		g := tree.Root(theme.Group.Render("globals"))
		for _, c := range v.Globals {
			g.Child(controlLabel(c, theme))
		}
		write(g)
	}
	return sb.String()
}

func flags(disabled, hidden bool, theme Theme) string {
	var out []string
	if disabled {
		out = append(out, "disabled")
	}
	if hidden {
		out = append(out, "hidden")
	}
	if len(out) == 0 {
		return ""
	}
	return " " + theme.Muted.Render("["+strings.Join(out, ",")+"]")
}

func nodeTree(n menu.Node, theme Theme) *tree.Tree {
	switch n := n.(type) {
	case *menu.Item:
		t := tree.Root(theme.Item.Render(n.Title) + " " + theme.Muted.Render(n.ID) + flags(n.Disabled, n.Hidden, theme))
		for _, c := range n.Children {
			t.Child(nodeTree(c, theme))
		}
		return t
	case *menu.Page:
		t := tree.Root(theme.Page.Render(n.Title) + " " + theme.Muted.Render(n.Path) + flags(n.Disabled, n.Hidden, theme))
		for _, g := range n.Groups {
			gt := tree.Root(theme.Group.Render(g.Header) + " " + theme.Muted.Render(g.ID))
			for _, c := range g.Controls {
				gt.Child(controlLabel(c, theme))
			}
			t.Child(gt)
		}
		return t
	case *menu.Link:
		return tree.Root(theme.Item.Render(n.Name) + " " + theme.Muted.Render("-> "+n.URL))
	}
	return tree.Root(n.NodeID())
}

func controlLabel(c *menu.Control, theme Theme) string {
	return theme.Control.Render(c.ID()) + " " + theme.Muted.Render(c.Props.String("type"))
}
