package predict_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrtronium/scribble/glyph"
	"github.com/zephyrtronium/scribble/internal/scene"
	"github.com/zephyrtronium/scribble/predict"
)

func TestReplayScenes(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.scene"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	g := glyph.DefaultGrouper()
	p := predict.New(nil)
	for _, file := range files {
		scenes, err := scene.Load(file)
		require.NoError(t, err)
		for _, s := range scenes {
			t.Run(s.Name, func(t *testing.T) {
				rep, err := s.Replay(context.Background(), &g, p, 64)
				require.NoError(t, err)
				assert.NoError(t, s.Check(rep, p.Policy.Decimals))
			})
		}
	}
}
