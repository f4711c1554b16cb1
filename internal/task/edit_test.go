package task

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDirectory(t *testing.T) {
	target, _ := newTarget("/old/place/tex_<udim>.png")
	factory, err := NewSetDirectoryFactory("/new/place")
	tk := build(t, factory, err, target, &memorySink{})

	ok, err := tk.Process(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/new/place/tex_<udim>.png"), filePath(t, target))

	_, err = NewSetDirectoryFactory("")
	assert.Error(t, err)
}

func TestFindReplace(t *testing.T) {
	tests := map[string]struct {
		params      FindReplaceParams
		path        string
		expPath     string
		expModified bool
		expErr      bool
	}{
		"A literal replacement should rewrite the path.": {
			params:      FindReplaceParams{Find: "/old/", Replace: "/new/"},
			path:        "/old/wood.png",
			expPath:     "/new/wood.png",
			expModified: true,
		},
		"A literal search should not be a regex.": {
			params:  FindReplaceParams{Find: "w.od", Replace: "x"},
			path:    "/old/wood.png",
			expPath: "/old/wood.png",
		},
		"A case sensitive search should not match other cases.": {
			params:  FindReplaceParams{Find: "OLD", Replace: "new"},
			path:    "/old/wood.png",
			expPath: "/old/wood.png",
		},
		"Ignoring case should match other cases.": {
			params:      FindReplaceParams{Find: "OLD", Replace: "new", IgnoreCase: true},
			path:        "/old/wood.png",
			expPath:     "/new/wood.png",
			expModified: true,
		},
		"A regex should support groups.": {
			params:      FindReplaceParams{Find: `(\w+)\.png$`, Replace: "${1}_v2.png", Regex: true},
			path:        "/old/wood.png",
			expPath:     "/old/wood_v2.png",
			expModified: true,
		},
		"A literal replacement should not expand groups.": {
			params:      FindReplaceParams{Find: "wood", Replace: "$1"},
			path:        "/old/wood.png",
			expPath:     "/old/$1.png",
			expModified: true,
		},
		"An invalid regex should fail.": {
			params: FindReplaceParams{Find: "(", Regex: true},
			expErr: true,
		},
		"An empty search should fail.": {
			params: FindReplaceParams{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			factory, err := NewFindReplaceFactory(test.params)
			if test.expErr {
				assert.Error(t, err)
				return
			}

			target, entity := newTarget(test.path)
			tk := build(t, factory, err, target, &memorySink{})
			ok, err := tk.Process(context.Background())
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, filepath.FromSlash(test.expPath), filePath(t, target))
			assert.Equal(t, test.expModified, entity.Modified())
		})
	}
}

func TestSwitchVariant(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "raw", "tex_1001.exr"), time.Now())
	touch(t, filepath.Join(root, "raw", "tex_1001.tx"), time.Now())
	touch(t, filepath.Join(root, "tiled", "tex_1001.tx"), time.Now())
	params := DefaultTilingParams()

	tests := map[string]struct {
		path    string
		toTiled bool
		expPath string
		expErr  error
	}{
		"Switching to tiled should use the tiled directory and extension.": {
			path:    "raw/tex_<udim>.exr",
			toTiled: true,
			expPath: "tiled/tex_<udim>.tx",
		},
		"Switching to raw should find the raw extension.": {
			path:    "tiled/tex_<udim>.tx",
			expPath: "raw/tex_<udim>.exr",
		},
		"Switching a tiled target to tiled should do nothing.": {
			path:    "tiled/tex_<udim>.tx",
			toTiled: true,
			expPath: "tiled/tex_<udim>.tx",
		},
		"A missing tiled file should not be found.": {
			path:    "raw/wood.exr",
			toTiled: true,
			expErr:  ErrNotFound,
		},
		"A missing raw file should not be found.": {
			path:   "tiled/wood.tx",
			expErr: ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			target, _ := newTarget(filepath.Join(root, filepath.FromSlash(test.path)))
			factory, err := NewSwitchFactory(test.toTiled, params)
			tk := build(t, factory, err, target, &memorySink{})

			ok, err := tk.Process(context.Background())
			if test.expErr != nil {
				assert.False(t, ok)
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(test.expPath)), filePath(t, target))
		})
	}
}
