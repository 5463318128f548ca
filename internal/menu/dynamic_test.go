package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dynamicPlacement(group string, numbers string) Placement {
	p := placement("rooms", group, "home")
	p.Page.Dynamic = true
	p.Page.Order = 3
	p.Page.Expression = "Room {x}"
	p.Page.Instances = []InstanceRange{{Name: numbers, Number: numbers}}
	return p
}

func pseudoPages(t *testing.T, tree *Tree) []*Page {
	t.Helper()
	home := tree.FindItem("home")
	require.NotNil(t, home)
	var out []*Page
	for _, n := range home.Children {
		if p, ok := n.(*Page); ok && p.Instance != nil {
			out = append(out, p)
		}
	}
	return out
}

func TestTree_DynamicExpansion(t *testing.T) {
	tree := NewTree()
	p := dynamicPlacement("g1", "1-3")
	p.Page.Instances = []InstanceRange{{Name: "Living Room,Kitchen,Hall", Number: "1-3"}}
	_, err := tree.Add(p, widget("temp", 0))
	require.NoError(t, err)

	pages := pseudoPages(t, tree)
	require.Len(t, pages, 3)
	assert.Equal(t, "rooms.1", pages[0].ID)
	assert.Equal(t, "Room Living Room", pages[0].Title)
	assert.Equal(t, "/d/home/roomlivingroom", pages[0].Path)
	assert.InDelta(t, 3.002, pages[2].Order, 1e-9)

	g := pages[1].Groups[0]
	assert.Equal(t, "g1.2", g.ID)
	require.Len(t, g.Controls, 1)
	assert.Equal(t, "temp.2", g.Controls[0].ID())
	assert.Equal(t, &Instance{Name: "Kitchen", Number: "2"}, g.Controls[0].Instance)
	assert.True(t, tree.Expanded("rooms"))
}

func TestTree_DynamicInvalidTemplate(t *testing.T) {
	tree := NewTree()
	p := dynamicPlacement("g1", "1-2")
	p.Page.Expression = "Room"
	_, err := tree.Add(p, widget("temp", 0))
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Empty(t, tree.Roots())
}

func TestTree_DynamicRegistrationIsIdempotent(t *testing.T) {
	tree := NewTree()
	for range 2 {
		_, err := tree.Add(dynamicPlacement("g1", "1-2"), widget("temp", 0))
		require.NoError(t, err)
	}

	pages := pseudoPages(t, tree)
	require.Len(t, pages, 2)
	for _, page := range pages {
		require.Len(t, page.Groups, 1)
		assert.Len(t, page.Groups[0].Controls, 1, page.ID)
	}
}

func TestTree_DynamicSecondControlJoinsExistingPages(t *testing.T) {
	tree := NewTree()
	_, err := tree.Add(dynamicPlacement("g1", "1-2"), widget("temp", 1))
	require.NoError(t, err)
	_, err = tree.Add(dynamicPlacement("g1", "1-2"), widget("hum", 2))
	require.NoError(t, err)
	_, err = tree.Add(dynamicPlacement("g2", "1-2"), widget("light", 0))
	require.NoError(t, err)

	for _, page := range pseudoPages(t, tree) {
		require.Len(t, page.Groups, 2)
		n := page.Instance.Number
		assert.Equal(t, []string{"g1." + n, "g2." + n}, []string{page.Groups[0].ID, page.Groups[1].ID})
		ids := []string{}
		for _, c := range page.Groups[0].Controls {
			ids = append(ids, c.ID())
		}
		assert.Equal(t, []string{"temp." + n, "hum." + n}, ids)
	}
}

func TestTree_DynamicTemplateChangeKeepsSiblings(t *testing.T) {
	tree := NewTree()
	_, err := tree.Add(placement("static", "g0", "home"), widget("other", 0))
	require.NoError(t, err)
	_, err = tree.Add(dynamicPlacement("g1", "1-2"), widget("temp", 0))
	require.NoError(t, err)
	require.Len(t, pseudoPages(t, tree), 2)

	_, err = tree.Add(dynamicPlacement("g1", "1-3"), widget("temp", 0))
	require.NoError(t, err)

	pages := pseudoPages(t, tree)
	require.Len(t, pages, 3)
	for _, page := range pages {
		assert.Len(t, page.Groups[0].Controls, 1, page.ID)
	}
	home := tree.FindItem("home")
	_, idx := findPage(home.Children, "static")
	assert.GreaterOrEqual(t, idx, 0, "static sibling survives regeneration")
}

func TestTree_DynamicRemoval(t *testing.T) {
	tree := NewTree()
	removeTemp, err := tree.Add(dynamicPlacement("g1", "1-2"), widget("temp", 0))
	require.NoError(t, err)
	removeHum, err := tree.Add(dynamicPlacement("g1", "1-2"), widget("hum", 0))
	require.NoError(t, err)

	removeTemp()
	pages := pseudoPages(t, tree)
	require.Len(t, pages, 2)
	assert.Equal(t, "hum.1", pages[0].Groups[0].Controls[0].ID())

	removeHum()
	assert.Empty(t, tree.Roots())
	assert.False(t, tree.Expanded("rooms"))
}

func TestTree_StaticReplacesDynamic(t *testing.T) {
	tree := NewTree()
	_, err := tree.Add(dynamicPlacement("g1", "1-2"), widget("temp", 0))
	require.NoError(t, err)

	_, err = tree.Add(placement("rooms", "g1", "home"), widget("temp", 0))
	require.NoError(t, err)

	assert.Empty(t, pseudoPages(t, tree))
	assert.False(t, tree.Expanded("rooms"))
	assert.Equal(t, []string{"rooms"}, childIDs(tree.FindItem("home").Children))
}
