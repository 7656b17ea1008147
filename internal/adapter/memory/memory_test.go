package memory

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jun/vaultgw/internal/adapter"
)

var _ adapter.Store = (*Store)(nil)
var _ adapter.StoreProvider = (*Provider)(nil)

func TestStore_CreateAndFindFolder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	created, err := s.CreateFolder(ctx, RootID, "2025")
	require.NoError(t, err)
	found, err := s.FindFolder(ctx, RootID, "2025")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, 1, s.Calls("create"))
	assert.Equal(t, 1, s.Calls("find"))
}

func TestStore_FindFolderIgnoresFiles(t *testing.T) {
	s := NewStore()
	s.AddFile(RootID, "2025", "application/pdf", []byte("x"))

	_, err := s.FindFolder(context.Background(), RootID, "2025")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}

func TestStore_ReparentReplacesParents(t *testing.T) {
	s := NewStore()
	a := s.AddFolder(RootID, "A")
	b := s.AddFolder(RootID, "B")
	target := s.AddFolder(RootID, "T")
	f := s.AddFile(a.ID, "f.pdf", "application/pdf", nil)

	s.mu.Lock()
	s.objects[f.ID].ref.Parents = []string{a.ID, b.ID}
	s.mu.Unlock()

	ref, err := s.Reparent(context.Background(), f.ID, target.ID, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{target.ID}, ref.Parents)
}

func TestStore_DeleteFolderRemovesTree(t *testing.T) {
	s := NewStore()
	dir := s.AddFolder(RootID, "dir")
	f := s.AddFile(dir.ID, "f.txt", "text/plain", []byte("x"))

	require.NoError(t, s.Delete(context.Background(), dir.ID))
	assert.False(t, s.Exists(dir.ID), "folder should be gone")
	assert.False(t, s.Exists(f.ID), "child should be gone")
	assert.ErrorIs(t, s.Delete(context.Background(), dir.ID), adapter.ErrNotFound)
}

func TestStore_OpenAndFailures(t *testing.T) {
	s := NewStore()
	f := s.AddFile(RootID, "a.pdf", "application/pdf", []byte("hello world"))
	ctx := context.Background()

	dl, err := s.Open(ctx, f.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))

	s.FailOpen[f.ID] = adapter.ErrPermission
	_, err = s.Open(ctx, f.ID)
	assert.ErrorIs(t, err, adapter.ErrPermission)
	delete(s.FailOpen, f.ID)

	s.FailReadAfter[f.ID] = 5
	dl, err = s.Open(ctx, f.ID)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = io.Copy(&buf, dl.Body)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "hello", buf.String())
}

func TestStore_UploadAndList(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Upload(ctx, strings.NewReader("b"), "b.txt", "text/plain", RootID)
	require.NoError(t, err)
	_, err = s.Upload(ctx, strings.NewReader("a"), "a.txt", "text/plain", RootID)
	require.NoError(t, err)

	files, err := s.ListFiles(ctx, RootID, 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Name)

	_, err = s.Upload(ctx, strings.NewReader("x"), "x.txt", "text/plain", "missing")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}
