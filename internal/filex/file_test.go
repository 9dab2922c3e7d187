package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDir_ResolvesRelativeToCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureDir(filepath.Join("data", "tmp"))
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(tmp, "data", "tmp"))
	require.NoError(t, err)
	gotReal, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	require.Equal(t, want, gotReal)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()

	first, err := EnsureDir(filepath.Join(tmp, "exports"))
	require.NoError(t, err)

	second, err := EnsureDir(filepath.Join(tmp, "exports"))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "exports")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o660))

	_, err := EnsureDir(path)
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestUniqueDir_Suffixes(t *testing.T) {
	tmp := t.TempDir()

	name, dir, err := UniqueDir(tmp, "100_20240101_000000")
	require.NoError(t, err)
	require.Equal(t, "100_20240101_000000", name)
	require.DirExists(t, dir)

	name, _, err = UniqueDir(tmp, "100_20240101_000000")
	require.NoError(t, err)
	require.Equal(t, "100_20240101_000000_2", name)

	name, _, err = UniqueDir(tmp, "100_20240101_000000")
	require.NoError(t, err)
	require.Equal(t, "100_20240101_000000_3", name)
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{}

	require.Equal(t, "report.pdf", UniqueName("report.pdf", taken))
	require.Equal(t, "report_2.pdf", UniqueName("report.pdf", taken))
	require.Equal(t, "report_3.pdf", UniqueName("report.pdf", taken))
	require.Equal(t, "notes", UniqueName("notes", taken))
	require.Equal(t, "notes_2", UniqueName("notes", taken))
	require.True(t, taken["report_3.pdf"])
}
