package secret

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSMClient struct {
	params map[string]string
	calls  int
}

func (f *fakeSSMClient) GetParameter(_ context.Context, input *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	val, ok := f.params[*input.Name]
	if !ok {
		return nil, fmt.Errorf("ParameterNotFound: %s", *input.Name)
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Name: input.Name, Value: aws.String(val)},
	}, nil
}

func TestSSMResolver_CachesValues(t *testing.T) {
	client := &fakeSSMClient{params: map[string]string{"/vaultgw/state-secret": "s3cr3t"}}
	r := NewSSMResolver(client)

	for i := 0; i < 3; i++ {
		v, err := r.GetSecret(context.Background(), "/vaultgw/state-secret")
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", v)
	}
	assert.Equal(t, 1, client.calls)
}

func TestSSMResolver_NotFound(t *testing.T) {
	r := NewSSMResolver(&fakeSSMClient{params: map[string]string{}})
	_, err := r.GetSecret(context.Background(), "/vaultgw/missing")
	assert.ErrorContains(t, err, "ParameterNotFound")
}

func TestEnvResolver(t *testing.T) {
	r := &EnvResolver{lookup: func(k string) (string, bool) {
		if k == "GOOGLE_CLIENT_SECRET" {
			return "from-env", true
		}
		return "", false
	}}

	v, err := r.GetSecret(context.Background(), "/vaultgw/google-client-secret")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = r.GetSecret(context.Background(), "/vaultgw/api-gateway-secret")
	assert.ErrorContains(t, err, "API_GATEWAY_SECRET")
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"/vaultgw/state-secret":         "STATE_SECRET",
		"/vaultgw/google-client-secret": "GOOGLE_CLIENT_SECRET",
		"plain-name":                    "PLAIN_NAME",
	}
	for in, want := range tests {
		assert.Equal(t, want, EnvName(in), in)
	}
}

func TestMustGet_Fallback(t *testing.T) {
	r := NewSSMResolver(&fakeSSMClient{params: map[string]string{"/a": "x"}})

	v, fellBack := MustGet(context.Background(), r, "/a", "def")
	assert.Equal(t, "x", v)
	assert.False(t, fellBack)

	v, fellBack = MustGet(context.Background(), r, "/b", "def")
	assert.Equal(t, "def", v)
	assert.True(t, fellBack)
}
