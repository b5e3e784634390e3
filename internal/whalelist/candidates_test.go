package whalelist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileCandidates_SkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "candidates.txt")
	content := "# curated large holders\n0x0000000000000000000000000000000000000001\n\n0x0000000000000000000000000000000000000002\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	addrs, err := FileCandidates{Path: path}.Addresses(context.Background())
	require.NoError(t, err)
	require.Len(t, addrs, 2)
}

func TestFileCandidates_RejectsInvalidAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "candidates.txt")
	require.NoError(t, os.WriteFile(path, []byte("not-an-address\n"), 0o600))

	_, err := FileCandidates{Path: path}.Addresses(context.Background())
	require.Error(t, err)
}
