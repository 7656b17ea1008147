// Package secret resolves named secrets from SSM Parameter Store or, in
// DEV_MODE, from environment variables.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches SecureString parameters. Values are cached for the
// life of the process; a warm Lambda container reuses them.
type SSMResolver struct {
	client SSMClient

	mu    sync.Mutex
	cache map[string]string
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client, cache: make(map[string]string)}
}

// GetSecret returns the decrypted parameter value.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	if v, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}

	v := *out.Parameter.Value
	r.mu.Lock()
	r.cache[name] = v
	r.mu.Unlock()
	return v, nil
}

// EnvResolver reads the environment variable derived from the parameter
// path: "/vaultgw/google-client-secret" -> "GOOGLE_CLIENT_SECRET".
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver returns a Resolver that reads from the process environment.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := EnvName(name)
	v, ok := r.lookup(envName)
	if !ok || v == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return v, nil
}

// EnvName converts an SSM parameter path to an environment variable name.
func EnvName(param string) string {
	last := param[strings.LastIndex(param, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// MustGet resolves name, falling back to def when resolution fails.
// The returned bool reports whether the fallback was used.
func MustGet(ctx context.Context, r Resolver, name, def string) (string, bool) {
	v, err := r.GetSecret(ctx, name)
	if err != nil || v == "" {
		return def, true
	}
	return v, false
}
