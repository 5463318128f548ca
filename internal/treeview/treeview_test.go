package treeview

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/livefir/livedash/internal/menu"
)

func TestString_PlainOutput(t *testing.T) {
	tree := menu.NewTree()
	placement := menu.Placement{
		Items: []menu.ItemConfig{{ID: "home", Name: "Home", PathName: "home"}},
		Page:  menu.PageConfig{ID: "p1", Name: "Climate", PathName: "climate"},
		Group: menu.GroupConfig{ID: "g1", Name: "Sensors"},
	}
	_, err := tree.Add(placement, menu.NewControl(menu.Props{"id": "temp", "type": "gauge"}))
	require.NoError(t, err)
	placement.Page.Hidden = true
	placement.Page.Name = "Climate"
	_, err = tree.Add(placement, menu.NewControl(menu.Props{"id": "hum", "type": "gauge"}))
	require.NoError(t, err)
	tree.AddLink(&menu.Link{Name: "Docs", URL: "https://example.com"})

	var buf bytes.Buffer
	buf.WriteString(String(tree.View(), NewTheme(lipgloss.NewRenderer(&buf))))

	want := "Docs -> https://example.com\n" +
		"Home home\n" +
		"└── Climate /d/home/climate [hidden]\n" +
		"    └── Sensors g1\n" +
		"        ├── temp gauge\n" +
		"        └── hum gauge\n"
	require.Equal(t, want, buf.String())
}

func TestString_Globals(t *testing.T) {
	tree := menu.NewTree()
	tree.AddGlobal(menu.NewControl(menu.Props{"id": "css", "type": "template", "templateScope": "global"}))
	tree.AddGlobal(menu.NewControl(menu.Props{"id": "js", "type": "template", "templateScope": "global"}))

	var buf bytes.Buffer
	out := String(tree.View(), NewTheme(lipgloss.NewRenderer(&buf)))
	require.Equal(t, "globals\n├── css template\n└── js template\n", out)
}
