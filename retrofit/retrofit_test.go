package retrofit_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sokinpui/retrofit/cli"
	"github.com/sokinpui/retrofit/model"
	"github.com/sokinpui/retrofit/retrofit"
)

const (
	fooSource = "PROCEDURE FOO IS\n-- TAG-1 changes starts\nSELECT 1;\n-- TAG-1 changes ends\nEND;\n"
	fooTarget = "PROCEDURE FOO IS\nEND;\n"
	newSpec   = "-- TAG-1 new spec\nCREATE PACKAGE X;\n"
)

// TestMain checks the worker pool leaves no goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

type trees struct {
	src, tgt, ws string
}

func setup(t *testing.T) trees {
	t.Helper()
	root := t.TempDir()
	tr := trees{
		src: filepath.Join(root, "sit"),
		tgt: filepath.Join(root, "uat"),
		ws:  filepath.Join(root, "ws"),
	}
	write(t, filepath.Join(tr.src, "pkg", "foo.pkb"), fooSource)
	write(t, filepath.Join(tr.src, "pkg", "new.pks"), newSpec)
	write(t, filepath.Join(tr.src, "pkg", "plain.sql"), "SELECT 0;\n")
	write(t, filepath.Join(tr.src, "readme.txt"), "TAG-1 is documented here\n")
	write(t, filepath.Join(tr.tgt, "pkg", "foo.pkb"), fooTarget)
	return tr
}

func newApp(t *testing.T, cfg *cli.Config) *retrofit.App {
	t.Helper()
	app, err := retrofit.New(cfg, nil, nil)
	require.NoError(t, err)
	return app
}

func runCfg(tr trees) *cli.Config {
	return &cli.Config{
		Reference:     "BANKING-1",
		SourceRoot:    tr.src,
		TargetRoot:    tr.tgt,
		WorkspaceRoot: tr.ws,
		Tags:          []string{"tag-1"},
	}
}

func TestRun_Apply(t *testing.T) {
	tr := setup(t)
	cfg := runCfg(tr)
	cfg.Diff = true

	summary, err := newApp(t, cfg).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, []string{"pkg/foo.pkb"}, summary.Merged)
	assert.Equal(t, []string{"pkg/new.pks"}, summary.NewUnits)
	assert.Empty(t, summary.Failed)

	base := filepath.Join(tr.ws, "BANKING-1")
	assert.Equal(t, base, summary.WorkspaceDir)
	assert.Equal(t, fooSource, read(t, filepath.Join(base, "Retro", "pkg", "foo.pkb")))
	assert.Equal(t, newSpec, read(t, filepath.Join(base, "Retro", "pkg", "new.pks")))
	assert.Equal(t, fooSource, read(t, filepath.Join(base, "Source", "pkg", "foo.pkb")))
	assert.Equal(t, fooTarget, read(t, filepath.Join(base, "Target", "pkg", "foo.pkb")))
	assert.FileExists(t, filepath.Join(base, "REPORT.md"))
	assert.FileExists(t, filepath.Join(base, "REPORT.html"))
	assert.FileExists(t, filepath.Join(base, "manifest.json"))
	assert.Contains(t, read(t, filepath.Join(base, "REPORT.md")), "+SELECT 1;")

	// The target tree is untouched without --apply.
	assert.Equal(t, fooTarget, read(t, filepath.Join(tr.tgt, "pkg", "foo.pkb")))
	assert.NoFileExists(t, filepath.Join(tr.tgt, "pkg", "new.pks"))
}

func TestRun_Preview(t *testing.T) {
	tr := setup(t)
	cfg := runCfg(tr)
	cfg.Preview = true

	summary, err := newApp(t, cfg).Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Preview)
	assert.Len(t, summary.Merged, 1)
	assert.Len(t, summary.NewUnits, 1)
	assert.Empty(t, summary.WorkspaceDir)
	assert.NoDirExists(t, tr.ws)
}

func TestRun_ApplyToTargetThenUndoRedo(t *testing.T) {
	tr := setup(t)
	cfg := runCfg(tr)
	cfg.ApplyToTarget = true

	summary, err := newApp(t, cfg).Execute(context.Background())
	require.NoError(t, err)
	for _, r := range summary.Results {
		assert.True(t, r.Applied, r.SourceFile)
	}
	fooPath := filepath.Join(tr.tgt, "pkg", "foo.pkb")
	newPath := filepath.Join(tr.tgt, "pkg", "new.pks")
	assert.Equal(t, fooSource, read(t, fooPath))
	assert.Equal(t, newSpec, read(t, newPath))

	undo := &cli.Config{WorkspaceRoot: tr.ws, Undo: true}
	summary, err = newApp(t, undo).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Reverted, 2)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, fooTarget, read(t, fooPath))
	assert.NoFileExists(t, newPath)

	summary, err = newApp(t, undo).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No operation to undo.", summary.Message)

	redo := &cli.Config{WorkspaceRoot: tr.ws, Redo: true}
	summary, err = newApp(t, redo).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Reverted, 2)
	assert.Equal(t, fooSource, read(t, fooPath))
	assert.Equal(t, newSpec, read(t, newPath))
}

func TestRun_UndoRefusesHandEditedTarget(t *testing.T) {
	tr := setup(t)
	cfg := runCfg(tr)
	cfg.ApplyToTarget = true
	_, err := newApp(t, cfg).Execute(context.Background())
	require.NoError(t, err)

	fooPath := filepath.Join(tr.tgt, "pkg", "foo.pkb")
	write(t, fooPath, "edited after the run\n")

	summary, err := newApp(t, &cli.Config{WorkspaceRoot: tr.ws, Undo: true}).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Failed, 1)
	assert.Equal(t, "edited after the run\n", read(t, fooPath))
}

func TestRun_ConcurrentMatchesSequential(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	tgt := filepath.Join(root, "tgt")
	for i := 0; i < 25; i++ {
		name := fmt.Sprintf("unit_%02d.sql", i)
		write(t, filepath.Join(src, name), fmt.Sprintf("BEGIN\n  x := %d; -- TAG-1\nEND;\n", i))
		if i%3 != 0 {
			write(t, filepath.Join(tgt, name), "BEGIN\nEND;\n")
		}
	}

	run := func(ws string, jobs int) model.Summary {
		cfg := &cli.Config{
			Reference:     "REF",
			SourceRoot:    src,
			TargetRoot:    tgt,
			WorkspaceRoot: ws,
			Tags:          []string{"TAG-1"},
			Jobs:          jobs,
		}
		summary, err := newApp(t, cfg).Execute(context.Background())
		require.NoError(t, err)
		return summary
	}
	seqWS, parWS := filepath.Join(root, "seq"), filepath.Join(root, "par")
	seq := run(seqWS, 1)
	par := run(parWS, 8)

	if diff := cmp.Diff(seq.Results, par.Results, cmpopts.IgnoreFields(model.RetrofitResult{}, "RetroPath")); diff != "" {
		t.Fatalf("results differ (-sequential +parallel):\n%s", diff)
	}
	for i := range seq.Results {
		s, p := seq.Results[i], par.Results[i]
		assert.Equal(t,
			read(t, filepath.Join(seqWS, "REF", "Retro", s.SourceFile)),
			read(t, filepath.Join(parWS, "REF", "Retro", p.SourceFile)))
	}
	assert.Len(t, seq.NewUnits, 9)
	assert.Len(t, seq.Merged, 16)
}

func TestRun_CancelledContext(t *testing.T) {
	tr := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newApp(t, runCfg(tr)).Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidArguments(t *testing.T) {
	tr := setup(t)
	cfg := runCfg(tr)
	cfg.Tags = []string{" ; "}

	_, err := newApp(t, cfg).Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search tag")

	cfg = runCfg(tr)
	cfg.Reference = "a/b"
	_, err = newApp(t, cfg).Execute(context.Background())
	require.Error(t, err)
}

func TestRun_NoSupportedFiles(t *testing.T) {
	tr := setup(t)
	cfg := runCfg(tr)
	cfg.SourceRoot = t.TempDir()

	summary, err := newApp(t, cfg).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No supported files found in source path.", summary.Message)
}

func TestDetailedErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &retrofit.DetailedError{Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "boom", err.Error())
}

func TestRun_SharedTargetIsJournaledOnce(t *testing.T) {
	const (
		aSource = "PROCEDURE FOO IS\n-- TAG-1 a starts\nSELECT 'a';\n-- TAG-1 a ends\nEND;\n"
		bSource = "PROCEDURE FOO IS\n-- TAG-2 b starts\nSELECT 'b';\n-- TAG-2 b ends\nEND;\n"
		merged  = "PROCEDURE FOO IS\n-- TAG-2 b starts\nSELECT 'b';\n-- TAG-2 b ends\n" +
			"-- TAG-1 a starts\nSELECT 'a';\n-- TAG-1 a ends\nEND;\n"
	)

	for _, jobs := range []int{1, 4} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			root := t.TempDir()
			src, tgt, ws := filepath.Join(root, "sit"), filepath.Join(root, "uat"), filepath.Join(root, "ws")
			write(t, filepath.Join(src, "a", "x.sql"), aSource)
			write(t, filepath.Join(src, "b", "x.sql"), bSource)
			targetPath := filepath.Join(tgt, "c", "x.sql")
			write(t, targetPath, fooTarget)

			cfg := &cli.Config{
				Reference:     "REF",
				SourceRoot:    src,
				TargetRoot:    tgt,
				WorkspaceRoot: ws,
				Tags:          []string{"TAG-1", "TAG-2"},
				Jobs:          jobs,
				ApplyToTarget: true,
			}
			summary, err := newApp(t, cfg).Execute(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"a/x.sql", "b/x.sql"}, summary.Merged)
			assert.Equal(t, merged, read(t, targetPath))
			assert.Equal(t, fooTarget, read(t, filepath.Join(ws, "REF", "Target", "c", "x.sql")))

			undo := &cli.Config{WorkspaceRoot: ws, Undo: true}
			summary, err = newApp(t, undo).Execute(context.Background())
			require.NoError(t, err)
			assert.Len(t, summary.Reverted, 1)
			assert.Empty(t, summary.Failed)
			assert.Equal(t, fooTarget, read(t, targetPath))

			redo := &cli.Config{WorkspaceRoot: ws, Redo: true}
			summary, err = newApp(t, redo).Execute(context.Background())
			require.NoError(t, err)
			assert.Len(t, summary.Reverted, 1)
			assert.Equal(t, merged, read(t, targetPath))
		})
	}
}

func TestRun_NewUnitKeepsSourceBytes(t *testing.T) {
	tr := setup(t)
	raw := "\xef\xbb\xbf-- TAG-1 spec\r\nCREATE PACKAGE Y;\r\n"
	write(t, filepath.Join(tr.src, "pkg", "bom.pks"), raw)

	cfg := runCfg(tr)
	cfg.ApplyToTarget = true
	summary, err := newApp(t, cfg).Execute(context.Background())
	require.NoError(t, err)

	assert.Contains(t, summary.NewUnits, "pkg/bom.pks")
	assert.Equal(t, raw, read(t, filepath.Join(tr.ws, "BANKING-1", "Retro", "pkg", "bom.pks")))
	assert.Equal(t, raw, read(t, filepath.Join(tr.tgt, "pkg", "bom.pks")))
}
