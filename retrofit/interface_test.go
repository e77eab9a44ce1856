package retrofit_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/retrofit/model"
	"github.com/sokinpui/retrofit/retrofit"
)

func TestLibraryInterface(t *testing.T) {
	tags := []string{"TAG-1"}

	t.Run("extract", func(t *testing.T) {
		blocks, err := retrofit.ExtractTaggedBlocks(fooSource, tags)
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, model.BlockTypeBlock, blocks[0].Type)
		assert.True(t, retrofit.HasAnyTag(fooSource, []string{"tag-1"}))
	})

	t.Run("smart merge is idempotent", func(t *testing.T) {
		once, err := retrofit.SmartMerge(fooSource, fooTarget, tags)
		require.NoError(t, err)
		twice, err := retrofit.SmartMerge(fooSource, once, tags)
		require.NoError(t, err)
		assert.Equal(t, fooSource, once)
		assert.Equal(t, once, twice)
	})

	t.Run("fallback appends content plus two lines", func(t *testing.T) {
		target := "completely\nunrelated\n"
		out, err := retrofit.SmartMerge("x := 1; -- TAG-1", target, tags)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
		assert.Len(t, lines, 2+1+2)
		assert.Contains(t, lines[3], "TAG-1")
		assert.Equal(t, "x := 1; -- TAG-1", lines[4])
	})

	t.Run("retrofit file new unit", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "Retro", "x.pks")
		res, err := retrofit.RetrofitFile(newSpec, nil, tags, out)
		require.NoError(t, err)
		assert.Equal(t, model.RetrofitNewUnit, res.Type)

		raw, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, newSpec, string(raw))
	})
}
