package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/model"
)

const defaultPageSize = 100

// FileHandler serves file and folder operations on the vault.
type FileHandler struct {
	vault  Vault
	logger *zap.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(v Vault, logger *zap.Logger) *FileHandler {
	return &FileHandler{vault: v, logger: logging.OrGlobal(logger)}
}

// ListFiles lists a folder, or the vault root when folderId is absent.
func (h *FileHandler) ListFiles(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	pageSize := int64(defaultPageSize)
	if s := req.QueryStringParameters["pageSize"]; s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return badRequest("invalid pageSize"), nil
		}
		pageSize = n
	}

	files, err := h.vault.ListFiles(ctx, req.QueryStringParameters["folderId"], pageSize)
	if err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "list files", err), nil
	}
	if files == nil {
		files = []model.ObjectRef{}
	}
	return jsonResponse(http.StatusOK, files), nil
}

// UploadFile stores the request body as a new file. The name, MIME type and
// folder come from the query string.
func (h *FileHandler) UploadFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	q := req.QueryStringParameters
	body, err := requestBody(req)
	if err != nil {
		return badRequest("invalid base64 body"), nil
	}
	mimeType := q["mimeType"]
	if mimeType == "" {
		mimeType = Header(req.Headers, "Content-Type")
	}

	ref, err := h.vault.UploadFile(ctx, bytes.NewReader(body), q["name"], mimeType, q["folderId"])
	if err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "upload", err), nil
	}
	return jsonResponse(http.StatusCreated, ref), nil
}

type copyRequest struct {
	TargetFolderID string `json:"targetFolderId"`
	NewName        string `json:"newName"`
}

// CopyFile copies {id} into the target folder.
func (h *FileHandler) CopyFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body copyRequest
	if err := decodeJSON(req, &body); err != nil {
		return badRequest("invalid request body"), nil
	}

	ref, err := h.vault.CopyFile(ctx, req.PathParameters["id"], body.TargetFolderID, body.NewName)
	if err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "copy", err), nil
	}
	return jsonResponse(http.StatusCreated, ref), nil
}

// MoveFile makes the target folder the only parent of {id}.
func (h *FileHandler) MoveFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body copyRequest
	if err := decodeJSON(req, &body); err != nil {
		return badRequest("invalid request body"), nil
	}

	ref, err := h.vault.MoveFile(ctx, req.PathParameters["id"], body.TargetFolderID)
	if err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "move", err), nil
	}
	return jsonResponse(http.StatusOK, ref), nil
}

// DeleteFile permanently deletes {id}.
func (h *FileHandler) DeleteFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.vault.DeleteFile(ctx, req.PathParameters["id"]); err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "delete", err), nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
}

type ensureRequest struct {
	RootID string `json:"rootId"`
	model.FolderPathSpec
}

// EnsureFolderPath resolves the folder hierarchy in the body, creating
// missing levels.
func (h *FileHandler) EnsureFolderPath(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body ensureRequest
	if err := decodeJSON(req, &body); err != nil {
		return badRequest("invalid request body"), nil
	}

	id, err := h.vault.EnsureFolderPath(ctx, body.RootID, body.FolderPathSpec)
	if err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "ensure folder path", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"folderId": id}), nil
}
