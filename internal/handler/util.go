// Package handler adapts API Gateway and Function URL requests to the vault
// gateway.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/auth"
	"github.com/jun/vaultgw/internal/catalog"
	"github.com/jun/vaultgw/internal/export"
	"github.com/jun/vaultgw/internal/gateway"
	"github.com/jun/vaultgw/internal/model"
)

// Vault is the part of the gateway the handlers call.
type Vault interface {
	GetAuthorizationURL() (string, error)
	HandleAuthorizationCallback(ctx context.Context, code, state string) error
	AuthStatus(ctx context.Context) gateway.Status
	ListFiles(ctx context.Context, folderID string, pageSize int64) ([]model.ObjectRef, error)
	UploadFile(ctx context.Context, r io.Reader, name, mimeType, folderID string) (*model.ObjectRef, error)
	EnsureFolderPath(ctx context.Context, rootID string, spec model.FolderPathSpec) (string, error)
	CopyFile(ctx context.Context, fileID, targetFolderID, newName string) (*model.ObjectRef, error)
	MoveFile(ctx context.Context, fileID, targetFolderID string) (*model.ObjectRef, error)
	DeleteFile(ctx context.Context, fileID string) error
	ExportArchive(ctx context.Context, items []model.ExportItem, sink export.Sink) (*export.Outcome, error)
	ExportByFilter(ctx context.Context, f catalog.Filter, sink export.Sink) (*export.Outcome, error)
}

// StatusFor maps a gateway error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, adapter.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, adapter.ErrMalformedInput), errors.Is(err, auth.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, adapter.ErrNotFound), errors.Is(err, export.ErrEmptyExport):
		return http.StatusNotFound
	case errors.Is(err, adapter.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, adapter.ErrQuota):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to encode response"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// errorResponse keeps the error text, since it carries the remote store's
// own diagnostic.
func errorResponse(logger *zap.Logger, op string, err error) events.APIGatewayProxyResponse {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Info(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	return jsonResponse(status, errorBody{Error: err.Error()})
}

func badRequest(msg string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, errorBody{Error: msg})
}

// Header returns the value of a header, ignoring case.
func Header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// requestBody returns the raw request body, decoding base64 when the proxy
// marked it so.
func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

func decodeJSON(req events.APIGatewayProxyRequest, v any) error {
	body, err := requestBody(req)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func archiveName(now time.Time) string {
	return "vault-export-" + now.UTC().Format("20060102-150405") + ".zip"
}
