package googledrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/retry"
)

var fastRetry = retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2}

func newTestStore(t *testing.T, h http.HandlerFunc) *DriveStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store, err := NewDriveStore(context.Background(), srv.Client(), zap.NewNop(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	store.readRetry = fastRetry
	return store
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func writeError(w http.ResponseWriter, code int, reason, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"errors":[{"reason":%q,"message":%q}]}}`, code, msg, reason, msg)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"O'Brien", `O\'Brien`},
		{`back\slash`, `back\\slash`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeQuery(tt.in), "escapeQuery(%q)", tt.in)
	}
}

func TestFindFolder_QueryAndResult(t *testing.T) {
	var gotQ, gotPageSize string
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		gotPageSize = r.URL.Query().Get("pageSize")
		writeJSON(w, `{"files":[{"id":"fold-1","name":"O'Brien","mimeType":"application/vnd.google-apps.folder","parents":["root-1"]}]}`)
	})

	ref, err := store.FindFolder(context.Background(), "root-1", "O'Brien")
	require.NoError(t, err)
	assert.Equal(t, "fold-1", ref.ID)
	assert.Equal(t, `name = 'O\'Brien' and mimeType = 'application/vnd.google-apps.folder' and 'root-1' in parents and trashed = false`, gotQ)
	assert.Equal(t, "1", gotPageSize)
}

func TestFindFolder_NotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"files":[]}`)
	})
	_, err := store.FindFolder(context.Background(), "root-1", "2025")
	require.ErrorIs(t, err, adapter.ErrNotFound)
}

func TestGetObject_RetriesTransientFailures(t *testing.T) {
	var calls int32
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeError(w, http.StatusServiceUnavailable, "backendError", "Backend Error")
			return
		}
		writeJSON(w, `{"id":"file-1","name":"a.pdf","parents":["p1","p2"]}`)
	})

	ref, err := store.GetObject(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"p1", "p2"}, ref.Parents)
}

func TestGetObject_TokenFailureNotRetried(t *testing.T) {
	var calls int32
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, fmt.Errorf("%w: access token expired and no refresh token is stored", adapter.ErrNotAuthenticated)
	})}
	store, err := NewDriveStore(context.Background(), client, zap.NewNop(), option.WithEndpoint("http://drive.test/"))
	require.NoError(t, err)
	store.readRetry = fastRetry

	_, err = store.GetObject(context.Background(), "file-1")
	require.ErrorIs(t, err, adapter.ErrNotAuthenticated)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateFolder_NotRetried(t *testing.T) {
	var calls int32
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusInternalServerError, "internalError", "Internal Error")
	})

	_, err := store.CreateFolder(context.Background(), "root-1", "2025")
	require.Error(t, err)
	var re *adapter.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusInternalServerError, re.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "create must not be retried")
}

func TestClassify_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		reason string
		want   error
	}{
		{"not found", http.StatusNotFound, "notFound", adapter.ErrNotFound},
		{"permission", http.StatusForbidden, "insufficientFilePermissions", adapter.ErrPermission},
		{"rate limit", http.StatusForbidden, "userRateLimitExceeded", adapter.ErrQuota},
		{"storage quota", http.StatusForbidden, "storageQuotaExceeded", adapter.ErrQuota},
		{"too many requests", http.StatusTooManyRequests, "rateLimitExceeded", adapter.ErrQuota},
		{"unauthorized", http.StatusUnauthorized, "authError", adapter.ErrNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.code, tt.reason, "The user does not have sufficient permissions for this file.")
			})
			err := store.Delete(context.Background(), "file-1")
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "sufficient permissions", "remote diagnostic lost")
		})
	}
}

func TestDelete_NotRetriedOnQuota(t *testing.T) {
	var calls int32
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusTooManyRequests, "rateLimitExceeded", "Rate Limit Exceeded")
	})
	_ = store.Delete(context.Background(), "file-1")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "delete must not be retried")
}

func TestReparent_JoinsRemovedParents(t *testing.T) {
	var method, add, remove string
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		add = r.URL.Query().Get("addParents")
		remove = r.URL.Query().Get("removeParents")
		writeJSON(w, `{"id":"file-1","name":"a.pdf","parents":["target"]}`)
	})

	ref, err := store.Reparent(context.Background(), "file-1", "target", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "target", add)
	assert.Equal(t, "p1,p2", remove)
	assert.Equal(t, []string{"target"}, ref.Parents)
}

func TestOpen_ExportsNativeDocument(t *testing.T) {
	var exportMIME string
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/export") {
			exportMIME = r.URL.Query().Get("mimeType")
			_, _ = io.WriteString(w, "%PDF-1.7")
			return
		}
		writeJSON(w, `{"id":"doc-1","name":"Syllabus","mimeType":"application/vnd.google-apps.document","webViewLink":"https://docs.google.com/document/d/doc-1/edit"}`)
	})

	dl, err := store.Open(context.Background(), "doc-1")
	require.NoError(t, err)
	defer dl.Body.Close()

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(body))
	assert.Equal(t, "application/pdf", exportMIME)
	assert.Equal(t, "Syllabus.pdf", dl.Name)
}

func TestOpen_DownloadsBinary(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			_, _ = io.WriteString(w, "binary-content")
			return
		}
		writeJSON(w, `{"id":"bin-1","name":"scan.pdf","mimeType":"application/pdf"}`)
	})

	dl, err := store.Open(context.Background(), "bin-1")
	require.NoError(t, err)
	defer dl.Body.Close()

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "binary-content", string(body))
	assert.Equal(t, "scan.pdf", dl.Name)
}

func TestOpen_MissingFile(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "notFound", "File not found: gone.")
	})
	_, err := store.Open(context.Background(), "gone")
	require.ErrorIs(t, err, adapter.ErrNotFound)
}

type stubFactory struct {
	client *http.Client
	err    error
}

func (s stubFactory) Build(context.Context) (*http.Client, error) { return s.client, s.err }

func TestProvider_PropagatesNotAuthenticated(t *testing.T) {
	p := NewProvider(stubFactory{err: adapter.ErrNotAuthenticated}, zap.NewNop())
	_, err := p.Store(context.Background())
	require.ErrorIs(t, err, adapter.ErrNotAuthenticated)
}
