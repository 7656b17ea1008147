package app

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/adapter/memory"
	"github.com/jun/vaultgw/internal/catalog"
	"github.com/jun/vaultgw/internal/config"
	"github.com/jun/vaultgw/internal/gateway"
	"github.com/jun/vaultgw/internal/model"
)

type stubAuth struct{}

func (stubAuth) AuthorizationURL() (string, error) {
	return "https://accounts.example.com/o/oauth2/auth", nil
}

func (stubAuth) HandleCallback(context.Context, string, string) (*model.CredentialSet, error) {
	return &model.CredentialSet{AccessToken: "a"}, nil
}

func (stubAuth) Status(context.Context) *model.CredentialSet { return nil }

func newTestApp(t *testing.T, devMode bool) (*App, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	gw := gateway.New(gateway.Options{
		Auth:         stubAuth{},
		Provider:     memory.NewProvider(store),
		Catalog:      catalog.StaticSource{},
		RootFolderID: memory.RootID,
		Logger:       zap.NewNop(),
	})
	cfg := &config.Config{DevMode: devMode, FrontendURL: "https://portal.example.edu"}
	return newApp(gw, cfg, "origin-secret", zap.NewNop()), store
}

func proxyRequest(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers:    map[string]string{"x-origin-verify": "origin-secret"},
	}
}

func TestHandleRequest_Preflight(t *testing.T) {
	app, _ := newTestApp(t, false)
	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "OPTIONS", Path: "/api/files"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://portal.example.edu", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandleRequest_OriginCheck(t *testing.T) {
	app, store := newTestApp(t, false)
	req := proxyRequest("GET", "/api/files", "")
	req.Headers = map[string]string{"X-Origin-Verify": "wrong"}

	resp, err := app.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, store.TotalCalls())

	dev, _ := newTestApp(t, true)
	resp, err = dev.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRequest_Routes(t *testing.T) {
	app, store := newTestApp(t, false)
	ctx := context.Background()
	file := store.AddFile(memory.RootID, "a.pdf", "application/pdf", []byte("AAA"))
	target := store.AddFolder(memory.RootID, "Archive")

	cases := []struct {
		method, path, body string
		want               int
	}{
		{"GET", "/api/auth/url", "", http.StatusOK},
		{"GET", "/auth/login", "", http.StatusFound},
		{"GET", "/auth/status", "", http.StatusOK},
		{"GET", "/api/files", "", http.StatusOK},
		{"POST", "/api/folders/ensure", `{"term":"1st Semester","category":"Syllabus"}`, http.StatusOK},
		{"POST", "/api/files/" + file.ID + "/copy", fmt.Sprintf(`{"targetFolderId":%q}`, target.ID), http.StatusCreated},
		{"POST", "/api/files/" + file.ID + "/move", fmt.Sprintf(`{"targetFolderId":%q}`, target.ID), http.StatusOK},
		{"POST", "/api/export", fmt.Sprintf(`{"items":[{"ref":%q,"name":"a.pdf"}]}`, file.ID), http.StatusOK},
		{"DELETE", "/api/files/" + file.ID, "", http.StatusNoContent},
		{"DELETE", "/api/files/" + file.ID, "", http.StatusNotFound},
		{"GET", "/api/notes", "", http.StatusNotFound},
	}
	for _, c := range cases {
		resp, err := app.HandleRequest(ctx, proxyRequest(c.method, c.path, c.body))
		require.NoError(t, err)
		assert.Equal(t, c.want, resp.StatusCode, "%s %s: %s", c.method, c.path, resp.Body)
	}
}

func TestHandleRequest_UploadQuery(t *testing.T) {
	app, store := newTestApp(t, false)
	req := proxyRequest("POST", "/api/files", "hello")
	req.QueryStringParameters = map[string]string{"name": "notes.txt", "mimeType": "text/plain"}

	resp, err := app.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	var ref model.ObjectRef
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &ref))
	assert.True(t, store.Exists(ref.ID))
	assert.Equal(t, []string{memory.RootID}, ref.Parents)
}

func TestHandleFunctionURL_StreamsExport(t *testing.T) {
	app, store := newTestApp(t, false)
	file := store.AddFile(memory.RootID, "a.pdf", "application/pdf", []byte("AAA"))

	req := events.LambdaFunctionURLRequest{
		RawPath: "/api/export",
		Headers: map[string]string{"x-origin-verify": "origin-secret"},
		Body:    fmt.Sprintf(`{"items":[{"ref":%q,"name":"a.pdf"}]}`, file.ID),
	}
	req.RequestContext.HTTP.Method = "POST"

	resp, err := app.HandleFunctionURL(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Headers["Content-Type"])
	assert.Equal(t, "https://portal.example.edu", resp.Headers["Access-Control-Allow-Origin"])

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "a.pdf", zr.File[0].Name)
}

func TestHandleFunctionURL_OtherRoutes(t *testing.T) {
	app, _ := newTestApp(t, false)

	req := events.LambdaFunctionURLRequest{RawPath: "/api/auth/status", Headers: map[string]string{"x-origin-verify": "origin-secret"}}
	req.RequestContext.HTTP.Method = "GET"
	resp, err := app.HandleFunctionURL(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"authenticated":false,"renewable":false}`, string(data))

	req = events.LambdaFunctionURLRequest{RawPath: "/api/export"}
	req.RequestContext.HTTP.Method = "POST"
	resp, err = app.HandleFunctionURL(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_LocalServer(t *testing.T) {
	app, store := newTestApp(t, true)
	file := store.AddFile(memory.RootID, "a.pdf", "application/pdf", []byte("AAA"))
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/files")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := fmt.Sprintf(`{"items":[{"ref":%q,"name":"a.pdf"}]}`, file.ID)
	exp, err := http.Post(srv.URL+"/api/export", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer exp.Body.Close()
	assert.Equal(t, http.StatusOK, exp.StatusCode)
	assert.Equal(t, "application/zip", exp.Header.Get("Content-Type"))

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	text, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "vaultgw_export_entries_total")
}

func TestStripAPIPrefix(t *testing.T) {
	assert.Equal(t, "/files", stripAPIPrefix("/api/files"))
	assert.Equal(t, "/apis", stripAPIPrefix("/apis"))
	assert.Equal(t, "", stripAPIPrefix("/api"))
}
