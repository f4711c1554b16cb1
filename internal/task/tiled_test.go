package task

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellTiling(script string) TilingParams {
	params := DefaultTilingParams()
	params.Tool = "sh"
	params.Args = []string{"-c", script, InputPlaceholder, OutputPlaceholder}
	return params
}

const copyScript = `echo "converting $0"; cp "$0" "$1"`

func TestTiledDirectory(t *testing.T) {
	tests := map[string]struct {
		dir    string
		expDir string
	}{
		"A raw segment should be swapped.": {
			dir:    "/assets/raw/wood",
			expDir: "/assets/tiled/wood",
		},
		"The last raw segment should be swapped.": {
			dir:    "/raw/assets/RAW",
			expDir: "/raw/assets/tiled",
		},
		"Without a raw segment a sub directory should be used.": {
			dir:    "/assets/wood",
			expDir: "/assets/wood/tiled",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := TiledDirectory(filepath.FromSlash(test.dir), "raw", "tiled")
			assert.Equal(t, filepath.FromSlash(test.expDir), got)
		})
	}
}

func TestRawDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "raw", "a.png"), time.Now())

	assert.Equal(t, filepath.Join(root, "raw"), RawDirectory(filepath.Join(root, "tiled"), "raw", "tiled"))
	assert.Equal(t, filepath.Join(root, "wood"), RawDirectory(filepath.Join(root, "wood", "tiled"), "raw", "tiled"))
	assert.Equal(t, filepath.Join(root, "wood"), RawDirectory(filepath.Join(root, "wood"), "raw", "tiled"))
}

func TestGenerateTiled(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	root := t.TempDir()
	raw := filepath.Join(root, "raw")
	touch(t, filepath.Join(raw, "tex_1001.png"), time.Now())
	touch(t, filepath.Join(raw, "tex_1002.png"), time.Now())

	params := shellTiling(copyScript)
	params.Verbose = true
	target, _ := newTarget(filepath.Join(raw, "tex_<udim>.png"))
	factory, err := NewTilingFactory(params, newTestEnv())
	sink := &memorySink{}
	tk := build(t, factory, err, target, sink)

	ok, err := tk.Process(context.Background())
	require.NoError(err)
	assert.True(ok)

	tiled := filepath.Join(root, "tiled")
	assert.FileExists(filepath.Join(tiled, "tex_1001.tx"))
	assert.FileExists(filepath.Join(tiled, "tex_1002.tx"))
	assert.Equal(filepath.Join(tiled, "tex_<udim>.tx"), filePath(t, target))
	assert.True(sink.Contains("converting " + filepath.Join(raw, "tex_1001.png")))
	assert.Equal("Generate Tiled: "+filepath.ToSlash(filepath.Join(tiled, "tex_<udim>.tx")), tk.DisplayText())
}

func TestGenerateTiledUpToDateNeverRunsTool(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "raw", "wood.png"), time.Now().Add(-time.Hour))
	touch(t, filepath.Join(root, "tiled", "wood.tx"), time.Now())

	params := DefaultTilingParams()
	params.Tool = "definitely-not-a-real-tool-xyz"
	target, _ := newTarget(filepath.Join(root, "raw", "wood.png"))
	factory, err := NewTilingFactory(params, newTestEnv())
	sink := &memorySink{}
	tk := build(t, factory, err, target, sink)

	ok, err := tk.Process(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, sink.Contains("Converting"))
	assert.Equal(t, filepath.Join(root, "tiled", "wood.tx"), filePath(t, target))
}

func TestGenerateTiledSkipsInFlightInput(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "raw", "wood.png")
	touch(t, input, time.Now())

	env := newTestEnv()
	require.True(t, env.InFlight.TryAdd(input))
	target, _ := newTarget(input)
	factory, err := NewTilingFactory(shellTiling("exit 1"), env)
	sink := &memorySink{}
	tk := build(t, factory, err, target, sink)

	ok, err := tk.Process(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, sink.Contains("being converted by another item"))
	assert.Equal(t, 1, env.InFlight.Len())
}

func TestGenerateTiledToolFailure(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "raw", "wood.png")
	touch(t, input, time.Now())
	env := newTestEnv()

	run := func() (*memorySink, error) {
		target, entity := newTarget(input)
		factory, err := NewTilingFactory(shellTiling(`echo "bad header in $0"; exit 4`), env)
		sink := &memorySink{}
		tk := build(t, factory, err, target, sink)
		ok, err := tk.Process(context.Background())
		assert.False(t, ok)
		assert.False(t, entity.Modified())
		return sink, err
	}

	// The captured output is dumped into the log on failure.
	sink, err := run()
	assert.ErrorIs(t, err, ErrExternalToolFailure)
	assert.True(t, sink.Contains("exited with code 4"))
	assert.True(t, sink.Contains("bad header in "+input))
	assert.Equal(t, 0, env.InFlight.Len())

	_, err = run()
	assert.ErrorIs(t, err, ErrExternalToolFailure)

	// Two consecutive failures open the breaker for the tool.
	sink, err = run()
	assert.ErrorIs(t, err, ErrExternalToolFailure)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, sink.Contains("exited with code"), "the tool isn't run while the breaker is open")
}

func TestGenerateTiledNotFound(t *testing.T) {
	root := t.TempDir()
	target, _ := newTarget(filepath.Join(root, "raw", "tex_<udim>.png"))
	factory, err := NewTilingFactory(shellTiling(copyScript), newTestEnv())
	tk := build(t, factory, err, target, &memorySink{})

	ok, err := tk.Process(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateTiledCancelKillsTool(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "raw", "wood.png")
	touch(t, input, time.Now())

	env := newTestEnv()
	target, entity := newTarget(input)
	factory, err := NewTilingFactory(shellTiling(`echo started; sleep 30`), env)
	sink := &memorySink{}
	tk := build(t, factory, err, target, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ok, err := tk.Process(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, entity.Modified())
	assert.Equal(t, 0, env.InFlight.Len())
	// A cancelled run does not count against the tool.
	assert.Equal(t, gobreaker.StateClosed, env.Breakers.Get("sh").State())
}

func TestTilingParamsValidation(t *testing.T) {
	tests := map[string]struct {
		mutate func(p *TilingParams)
	}{
		"A missing tool should fail.":           {mutate: func(p *TilingParams) { p.Tool = "" }},
		"An extension without dot should fail.": {mutate: func(p *TilingParams) { p.Extension = "tx" }},
		"A missing raw segment should fail.":    {mutate: func(p *TilingParams) { p.RawSegment = "" }},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			params := DefaultTilingParams()
			test.mutate(&params)
			_, err := NewTilingFactory(params, newTestEnv())
			assert.Error(t, err)
		})
	}
}
