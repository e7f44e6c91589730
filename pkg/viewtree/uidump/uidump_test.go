package uidump

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

func TestParseFile(t *testing.T) {
	root, err := ParseFile("testdata/settings.xml")
	require.NoError(t, err)

	assert.Equal(t, viewtree.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400}, root.Bounds())

	title := viewtree.FindByText(root, "network & internet", true)
	require.NotNil(t, title, "title inside a clickable row should resolve")
	assert.Equal(t, "title", viewtree.LocalID(title.ID()))
	assert.True(t, title.Parent().Flags().Has(viewtree.FlagClickable))

	search := viewtree.FindByDescription(root, "search settings", false)
	require.NotNil(t, search)
	assert.True(t, viewtree.HasAction(search, viewtree.ActionClick))

	field := viewtree.FindFirstEditable(root)
	require.NotNil(t, field)
	assert.Equal(t, "com.android.settings:id/search_src_text", field.ID())
	assert.True(t, viewtree.HasAction(field, viewtree.ActionSetText))

	assert.Len(t, viewtree.FindAllInteractive(root), 4)
}

func TestParseStripsShellNoise(t *testing.T) {
	dump := "UI hierchary dumped to: /dev/tty\n" +
		`<?xml version="1.0"?><hierarchy><node text="OK" clickable="true" bounds="[0,0][10,10]"/></hierarchy>` +
		"\n$ "
	root, err := Parse(strings.NewReader(dump))
	require.NoError(t, err)
	assert.Equal(t, "OK", root.Text())
}

func TestParseWrapsMultipleRoots(t *testing.T) {
	dump := `<hierarchy>
		<node text="status" bounds="[0,0][1080,80]"/>
		<node text="app" bounds="[0,80][1080,2400]"/>
	</hierarchy>`
	root, err := Parse(strings.NewReader(dump))
	require.NoError(t, err)
	assert.Len(t, root.Children(), 2)
	assert.Equal(t, viewtree.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400}, root.Bounds())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(`<hierarchy></hierarchy>`))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = Parse(strings.NewReader(`<hierarchy><node bounds="[0,0]"/></hierarchy>`))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = ParseFile("testdata/missing.xml")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageRead))
}

func TestParseBounds(t *testing.T) {
	r, err := ParseBounds("[189,346][654,410]")
	require.NoError(t, err)
	assert.Equal(t, viewtree.Rect{Left: 189, Top: 346, Right: 654, Bottom: 410}, r)

	_, err = ParseBounds("189,346,654,410")
	assert.Error(t, err)
}
