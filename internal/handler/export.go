package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/catalog"
	"github.com/jun/vaultgw/internal/export"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/model"
)

const maxExportRequestBytes = 4 << 20

// ExportRequest is the body of POST /export. Items win over Filter when both
// are present.
type ExportRequest struct {
	Items  []model.ExportItem `json:"items"`
	Filter *catalog.Filter    `json:"filter,omitempty"`
}

// ParseExportRequest decodes an export request body. An empty body is an
// empty export, not a malformed one.
func ParseExportRequest(body []byte) (ExportRequest, error) {
	var er ExportRequest
	if len(bytes.TrimSpace(body)) == 0 {
		return er, nil
	}
	if err := json.Unmarshal(body, &er); err != nil {
		return er, fmt.Errorf("invalid export request: %w", err)
	}
	return er, nil
}

// ExportHandler streams zip archives of vault files.
type ExportHandler struct {
	vault  Vault
	logger *zap.Logger
	now    func() time.Time
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(v Vault, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{vault: v, logger: logging.OrGlobal(logger), now: time.Now}
}

func (h *ExportHandler) run(ctx context.Context, er ExportRequest, sink export.Sink) (*export.Outcome, error) {
	if len(er.Items) == 0 && er.Filter != nil {
		return h.vault.ExportByFilter(ctx, *er.Filter, sink)
	}
	return h.vault.ExportArchive(ctx, er.Items, sink)
}

func (h *ExportHandler) zipHeaders() map[string]string {
	return map[string]string{
		"Content-Type":        "application/zip",
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", archiveName(h.now())),
		"Cache-Control":       "no-store",
	}
}

// Export builds the archive in memory and returns it base64 encoded. API
// Gateway proxy integrations cannot stream, so this is the fallback route.
func (h *ExportHandler) Export(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := logging.WithContext(ctx, h.logger)
	body, err := requestBody(req)
	if err != nil {
		return badRequest("invalid base64 body"), nil
	}
	er, err := ParseExportRequest(body)
	if err != nil {
		return badRequest(err.Error()), nil
	}

	sink := &bufferSink{}
	if _, err := h.run(ctx, er, sink); err != nil {
		return errorResponse(logger, "export", err), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Headers:         h.zipHeaders(),
		Body:            base64.StdEncoding.EncodeToString(sink.buf.Bytes()),
		IsBase64Encoded: true,
	}, nil
}

// ServeHTTP streams the archive straight to w. Once the 200 is sent, later
// failures can only end the stream early.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithContext(ctx, h.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxExportRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "cannot read request body"})
		return
	}
	er, err := ParseExportRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	sink := &responseSink{w: w, rc: http.NewResponseController(w), headers: h.zipHeaders()}
	if _, err := h.run(ctx, er, sink); err != nil {
		if sink.started {
			logger.Warn("export stream ended early", zap.Error(err))
			return
		}
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("export failed", zap.Error(err))
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
	}
}

// Stream serves a Lambda Function URL in response streaming mode. It returns
// as soon as the archive has started, or with an error response when the
// export fails before that.
func (h *ExportHandler) Stream(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	logger := logging.WithContext(ctx, h.logger)

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return streamingJSON(http.StatusBadRequest, errorBody{Error: "invalid base64 body"}), nil
		}
		body = decoded
	}
	er, err := ParseExportRequest(body)
	if err != nil {
		return streamingJSON(http.StatusBadRequest, errorBody{Error: err.Error()}), nil
	}

	pr, pw := io.Pipe()
	sink := &pipeSink{pw: pw, started: make(chan struct{})}
	// A reader that stops without closing must not strand the writer.
	stop := context.AfterFunc(ctx, func() { pr.CloseWithError(ctx.Err()) })
	done := make(chan error, 1)
	go func() {
		defer stop()
		_, err := h.run(ctx, er, sink)
		if err != nil && sink.isStarted() {
			logger.Warn("export stream ended early", zap.Error(err))
		}
		pw.CloseWithError(err)
		done <- err
	}()

	select {
	case <-sink.started:
	case err := <-done:
		if err != nil && !sink.isStarted() {
			if StatusFor(err) >= http.StatusInternalServerError {
				logger.Error("export failed", zap.Error(err))
			}
			return streamingJSON(StatusFor(err), errorBody{Error: err.Error()}), nil
		}
	}
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: http.StatusOK,
		Headers:    h.zipHeaders(),
		Body:       pr,
	}, nil
}

// ProxyToStreaming wraps a buffered response for a streaming Function URL.
func ProxyToStreaming(resp events.APIGatewayProxyResponse) *events.LambdaFunctionURLStreamingResponse {
	var body io.Reader = bytes.NewReader([]byte(resp.Body))
	if resp.IsBase64Encoded {
		body = base64.NewDecoder(base64.StdEncoding, bytes.NewReader([]byte(resp.Body)))
	}
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       body,
	}
}

func streamingJSON(status int, v any) *events.LambdaFunctionURLStreamingResponse {
	return ProxyToStreaming(jsonResponse(status, v))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bufferSink collects the whole archive.
type bufferSink struct {
	buf bytes.Buffer
}

func (b *bufferSink) Start() error { return nil }

func (b *bufferSink) Write(p []byte) (int, error) { return b.buf.Write(p) }

// responseSink writes to a net/http response.
type responseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	headers map[string]string
	started bool
}

func (s *responseSink) Start() error {
	for k, v := range s.headers {
		s.w.Header().Set(k, v)
	}
	s.w.WriteHeader(http.StatusOK)
	s.started = true
	return nil
}

func (s *responseSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *responseSink) Flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// pipeSink feeds the reader handed to the Lambda runtime.
type pipeSink struct {
	pw      *io.PipeWriter
	started chan struct{}
}

func (s *pipeSink) Start() error {
	close(s.started)
	return nil
}

func (s *pipeSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *pipeSink) isStarted() bool {
	select {
	case <-s.started:
		return true
	default:
		return false
	}
}
