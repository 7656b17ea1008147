package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/logging"
)

// AuthHandler serves the vault account consent flow.
type AuthHandler struct {
	vault       Vault
	frontendURL string
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. After a successful callback the
// browser is sent back to frontendURL.
func NewAuthHandler(v Vault, frontendURL string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{vault: v, frontendURL: strings.TrimSuffix(frontendURL, "/"), logger: logging.OrGlobal(logger)}
}

// URL returns the consent URL as JSON.
func (h *AuthHandler) URL(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	url, err := h.vault.GetAuthorizationURL()
	if err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "authorization url", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"url": url}), nil
}

// Login redirects to the consent screen.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	url, err := h.vault.GetAuthorizationURL()
	if err != nil {
		return errorResponse(logging.WithContext(ctx, h.logger), "authorization url", err), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": url,
		},
	}, nil
}

// Callback completes consent and stores the vault credential.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := logging.WithContext(ctx, h.logger)

	if e := req.QueryStringParameters["error"]; e != "" {
		logger.Warn("consent denied", zap.String("error", e))
		return h.redirect("denied"), nil
	}
	code := req.QueryStringParameters["code"]
	if code == "" {
		return badRequest("missing code"), nil
	}

	if err := h.vault.HandleAuthorizationCallback(ctx, code, req.QueryStringParameters["state"]); err != nil {
		return errorResponse(logger, "authorization callback", err), nil
	}
	logger.Info("vault account connected")
	return h.redirect("connected"), nil
}

// Status reports whether a credential is stored.
func (h *AuthHandler) Status(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(http.StatusOK, h.vault.AuthStatus(ctx)), nil
}

func (h *AuthHandler) redirect(result string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.frontendURL + "/?vault=" + result,
		},
	}
}
