// Package memory implements adapter.Store in process memory. It backs
// DEV_MODE and the tests of every component above the remote store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/model"
)

// RootID is the folder every Store starts with.
const RootID = "root"

type object struct {
	ref     model.ObjectRef
	content []byte
}

// Store is an in-memory adapter.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object
	calls   map[string]int

	// FailOpen makes Open of the given ids fail with the mapped error.
	FailOpen map[string]error
	// FailReadAfter makes reads of the given ids fail once that many bytes were served.
	FailReadAfter map[string]int
	// FailCreate, when set, is returned by CreateFolder.
	FailCreate error
	// FailReparent, when set, is returned by Reparent.
	FailReparent error
	// FailDelete, when set, is returned by Delete.
	FailDelete error
}

// NewStore returns a Store holding only the root folder.
func NewStore() *Store {
	s := &Store{
		objects:       make(map[string]*object),
		calls:         make(map[string]int),
		FailOpen:      make(map[string]error),
		FailReadAfter: make(map[string]int),
	}
	s.objects[RootID] = &object{ref: model.ObjectRef{
		ID:       RootID,
		Name:     "Vault",
		MIMEType: adapter.FolderMIMEType,
	}}
	return s
}

func (s *Store) record(op string) {
	s.calls[op]++
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// TotalCalls returns the number of Store calls of any kind.
func (s *Store) TotalCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// AddFolder inserts a folder directly, bypassing call accounting.
func (s *Store) AddFolder(parentID, name string) model.ObjectRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(parentID, name, adapter.FolderMIMEType, nil)
}

// AddFile inserts a file directly, bypassing call accounting.
func (s *Store) AddFile(parentID, name, mimeType string, content []byte) model.ObjectRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(parentID, name, mimeType, content)
}

// Children returns the objects directly under parentID, sorted by name.
func (s *Store) Children(parentID string) []model.ObjectRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.children(parentID)
}

// Exists reports whether id is present.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

func (s *Store) insert(parentID, name, mimeType string, content []byte) model.ObjectRef {
	id := uuid.NewString()
	ref := model.ObjectRef{
		ID:          id,
		Name:        name,
		MIMEType:    mimeType,
		Parents:     []string{parentID},
		WebViewLink: "https://drive.example.com/file/d/" + id + "/view",
		Size:        int64(len(content)),
	}
	s.objects[id] = &object{ref: ref, content: content}
	return cloneRef(ref)
}

func (s *Store) children(parentID string) []model.ObjectRef {
	var out []model.ObjectRef
	for _, o := range s.objects {
		if o.ref.HasParent(parentID) {
			out = append(out, cloneRef(o.ref))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) FindFolder(ctx context.Context, parentID, name string) (*model.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("find")

	for _, c := range s.children(parentID) {
		if c.MIMEType == adapter.FolderMIMEType && c.Name == name {
			return &c, nil
		}
	}
	return nil, adapter.ErrNotFound
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (*model.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create")

	if s.FailCreate != nil {
		return nil, s.FailCreate
	}
	if _, ok := s.objects[parentID]; !ok {
		return nil, fmt.Errorf("create folder: parent %s: %w", parentID, adapter.ErrNotFound)
	}
	ref := s.insert(parentID, name, adapter.FolderMIMEType, nil)
	return &ref, nil
}

func (s *Store) GetObject(ctx context.Context, id string) (*model.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("get")

	o, ok := s.objects[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	ref := cloneRef(o.ref)
	return &ref, nil
}

func (s *Store) ListFiles(ctx context.Context, folderID string, pageSize int64) ([]model.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("list")

	if _, ok := s.objects[folderID]; !ok {
		return nil, adapter.ErrNotFound
	}
	out := s.children(folderID)
	if pageSize > 0 && int64(len(out)) > pageSize {
		out = out[:pageSize]
	}
	return out, nil
}

func (s *Store) Upload(ctx context.Context, r io.Reader, name, mimeType, folderID string) (*model.ObjectRef, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("upload")

	if _, ok := s.objects[folderID]; !ok {
		return nil, adapter.ErrNotFound
	}
	ref := s.insert(folderID, name, mimeType, content)
	return &ref, nil
}

func (s *Store) Copy(ctx context.Context, id, targetFolderID, newName string) (*model.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("copy")

	src, ok := s.objects[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	if _, ok := s.objects[targetFolderID]; !ok {
		return nil, adapter.ErrNotFound
	}
	name := newName
	if name == "" {
		name = "Copy of " + src.ref.Name
	}
	ref := s.insert(targetFolderID, name, src.ref.MIMEType, bytes.Clone(src.content))
	return &ref, nil
}

func (s *Store) Reparent(ctx context.Context, id, addParent string, removeParents []string) (*model.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("reparent")

	if s.FailReparent != nil {
		return nil, s.FailReparent
	}
	o, ok := s.objects[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	if _, ok := s.objects[addParent]; !ok {
		return nil, adapter.ErrNotFound
	}

	remove := make(map[string]bool, len(removeParents))
	for _, p := range removeParents {
		remove[p] = true
	}
	parents := []string{addParent}
	for _, p := range o.ref.Parents {
		if p != addParent && !remove[p] {
			parents = append(parents, p)
		}
	}
	o.ref.Parents = parents
	ref := cloneRef(o.ref)
	return &ref, nil
}

// Delete removes id and, for folders, everything beneath it.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete")

	if s.FailDelete != nil {
		return s.FailDelete
	}
	if _, ok := s.objects[id]; !ok {
		return adapter.ErrNotFound
	}
	s.deleteTree(id)
	return nil
}

func (s *Store) deleteTree(id string) {
	for _, c := range s.children(id) {
		s.deleteTree(c.ID)
	}
	delete(s.objects, id)
}

func (s *Store) Open(ctx context.Context, id string) (*adapter.Download, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("open")

	if err, ok := s.FailOpen[id]; ok {
		return nil, err
	}
	o, ok := s.objects[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	if o.ref.MIMEType == adapter.FolderMIMEType {
		return nil, fmt.Errorf("open %s: %w: object is a folder", id, adapter.ErrMalformedInput)
	}

	var body io.Reader = bytes.NewReader(bytes.Clone(o.content))
	if n, ok := s.FailReadAfter[id]; ok {
		body = &failingReader{r: io.LimitReader(body, int64(n))}
	}
	return &adapter.Download{
		Body:        io.NopCloser(body),
		Name:        o.ref.Name,
		MIMEType:    o.ref.MIMEType,
		WebViewLink: o.ref.WebViewLink,
	}, nil
}

// failingReader serves r and then fails instead of reporting EOF.
type failingReader struct {
	r io.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func cloneRef(r model.ObjectRef) model.ObjectRef {
	r.Parents = append([]string(nil), r.Parents...)
	return r
}

// Provider hands out one shared Store, always authenticated.
type Provider struct {
	store *Store
}

func NewProvider(store *Store) *Provider {
	return &Provider{store: store}
}

func (p *Provider) Store(context.Context) (adapter.Store, error) {
	return p.store, nil
}
