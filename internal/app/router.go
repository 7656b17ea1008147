package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/handler"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/metrics"
)

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := req.RequestContext.RequestID
	if requestID == "" {
		requestID = logging.NewRequestID()
	}
	ctx = logging.WithRequestID(ctx, requestID)
	logger := logging.WithContext(ctx, app.logger)

	path := req.Path
	method := req.HTTPMethod
	logger.Debug("request", zap.String("method", method), zap.String("path", path))

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	if !app.originAllowed(req.Headers) {
		logger.Warn("missing or invalid X-Origin-Verify header")
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       "Forbidden: Access denied",
		}, nil
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path = stripAPIPrefix(path)

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}
	if req.QueryStringParameters == nil {
		req.QueryStringParameters = make(map[string]string)
	}

	// /auth
	if strings.HasPrefix(path, "/auth/") && method == http.MethodGet {
		switch path {
		case "/auth/url":
			return app.corsResponse(app.must(ctx)(app.authHandler.URL(ctx, req))), nil
		case "/auth/login":
			return app.corsResponse(app.must(ctx)(app.authHandler.Login(ctx, req))), nil
		case "/auth/callback":
			return app.corsResponse(app.must(ctx)(app.authHandler.Callback(ctx, req))), nil
		case "/auth/status":
			return app.corsResponse(app.must(ctx)(app.authHandler.Status(ctx, req))), nil
		}
	}

	// /files
	if path == "/files" {
		if method == http.MethodGet {
			return app.corsResponse(app.must(ctx)(app.fileHandler.ListFiles(ctx, req))), nil
		}
		if method == http.MethodPost {
			return app.corsResponse(app.must(ctx)(app.fileHandler.UploadFile(ctx, req))), nil
		}
	}
	// /files/{id}[/copy|/move]
	if strings.HasPrefix(path, "/files/") {
		parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/files/"), "/"), "/")
		req.PathParameters["id"] = parts[0]

		if len(parts) == 1 && method == http.MethodDelete {
			return app.corsResponse(app.must(ctx)(app.fileHandler.DeleteFile(ctx, req))), nil
		}
		if len(parts) == 2 && method == http.MethodPost {
			switch parts[1] {
			case "copy":
				return app.corsResponse(app.must(ctx)(app.fileHandler.CopyFile(ctx, req))), nil
			case "move":
				return app.corsResponse(app.must(ctx)(app.fileHandler.MoveFile(ctx, req))), nil
			}
		}
	}

	// /folders
	if path == "/folders/ensure" && method == http.MethodPost {
		return app.corsResponse(app.must(ctx)(app.fileHandler.EnsureFolderPath(ctx, req))), nil
	}

	// /export, buffered
	if path == "/export" && method == http.MethodPost {
		return app.corsResponse(app.must(ctx)(app.exportHandler.Export(ctx, req))), nil
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// HandleFunctionURL serves a Lambda Function URL in response streaming mode.
// Exports stream; every other route is answered by HandleRequest.
func (app *App) HandleFunctionURL(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	method := req.RequestContext.HTTP.Method
	path := req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}

	if method == http.MethodPost && stripAPIPrefix(path) == "/export" {
		if !app.originAllowed(req.Headers) {
			return handler.ProxyToStreaming(events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}), nil
		}
		requestID := req.RequestContext.RequestID
		if requestID == "" {
			requestID = logging.NewRequestID()
		}
		ctx = logging.WithRequestID(ctx, requestID)

		resp, err := app.exportHandler.Stream(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.Headers = app.withCORS(resp.Headers)
		return resp, nil
	}

	resp, err := app.HandleRequest(ctx, events.APIGatewayProxyRequest{
		Path:                  path,
		HTTPMethod:            method,
		Headers:               req.Headers,
		QueryStringParameters: req.QueryStringParameters,
		Body:                  req.Body,
		IsBase64Encoded:       req.IsBase64Encoded,
		RequestContext:        events.APIGatewayProxyRequestContext{RequestID: req.RequestContext.RequestID},
	})
	if err != nil {
		return nil, err
	}
	return handler.ProxyToStreaming(resp), nil
}

// Handler returns the net/http surface of the local server. Exports stream
// straight to the client, /metrics serves Prometheus, everything else goes
// through HandleRequest.
func (app *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())

	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range app.withCORS(nil) {
			w.Header().Set(k, v)
		}
		if !app.originAllowed(flattenHeader(r.Header)) {
			http.Error(w, "Forbidden: Access denied", http.StatusForbidden)
			return
		}
		app.exportHandler.ServeHTTP(w, r)
	})
	mux.Handle("POST /export", stream)
	mux.Handle("POST /api/export", stream)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "cannot read request body", http.StatusBadRequest)
			return
		}

		queryParams := make(map[string]string)
		for k, v := range r.URL.Query() {
			queryParams[k] = v[0]
		}

		resp, err := app.HandleRequest(r.Context(), events.APIGatewayProxyRequest{
			Path:                  r.URL.Path,
			HTTPMethod:            r.Method,
			Headers:               flattenHeader(r.Header),
			QueryStringParameters: queryParams,
			Body:                  string(body),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, handler.ProxyToStreaming(resp).Body); err != nil {
			logging.WithContext(r.Context(), app.logger).Warn("write response", zap.Error(err))
		}
	})

	return logging.Middleware(mux)
}

// originAllowed checks the CloudFront shared secret. It is skipped in
// DEV_MODE.
func (app *App) originAllowed(headers map[string]string) bool {
	if app.devMode {
		return true
	}
	return app.apiGatewaySecret != "" && handler.Header(headers, "X-Origin-Verify") == app.apiGatewaySecret
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	resp.Headers = app.withCORS(resp.Headers)
	return resp
}

func (app *App) withCORS(headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string)
	}
	headers["Access-Control-Allow-Origin"] = app.frontendURL
	headers["Access-Control-Allow-Credentials"] = "true"
	headers["Access-Control-Allow-Methods"] = "GET,POST,DELETE,OPTIONS"
	headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	headers["Access-Control-Expose-Headers"] = "Content-Disposition"
	return headers
}

// must unwraps a handler response, turning an error into a 500.
func (app *App) must(ctx context.Context) func(events.APIGatewayProxyResponse, error) events.APIGatewayProxyResponse {
	return func(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
		if err != nil {
			logging.WithContext(ctx, app.logger).Error("handler error", zap.Error(err))
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
		}
		return resp
	}
}

func stripAPIPrefix(path string) string {
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		return strings.TrimPrefix(path, "/api")
	}
	return path
}

func flattenHeader(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}
