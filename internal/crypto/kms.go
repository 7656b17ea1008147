package crypto

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Encryptor seals credential fields before they reach the credential store.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KMSClient is the subset of *kms.Client used by KMSEncryptor.
type KMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// credentialContext binds ciphertexts to this use so they cannot be
// replayed against another KMS consumer of the same key.
var credentialContext = map[string]string{"purpose": "vaultgw-credential"}

// KMSEncryptor implements Encryptor using AWS KMS.
type KMSEncryptor struct {
	client KMSClient
	keyID  string
}

// NewKMSEncryptor creates a KMSEncryptor.
// keyID can be a key ID, key ARN, or alias name (e.g., "alias/vaultgw-credential-key").
func NewKMSEncryptor(client KMSClient, keyID string) *KMSEncryptor {
	return &KMSEncryptor{client: client, keyID: keyID}
}

// Encrypt returns the base64 ciphertext of plaintext. Empty input stays empty
// so optional fields like a missing refresh token round-trip unchanged.
func (s *KMSEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	out, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(s.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: credentialContext,
	})
	if err != nil {
		return "", fmt.Errorf("kms encrypt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Decrypt reverses Encrypt.
func (s *KMSEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	out, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		KeyId:             aws.String(s.keyID),
		EncryptionContext: credentialContext,
	})
	if err != nil {
		return "", fmt.Errorf("kms decrypt: %w", err)
	}

	return string(out.Plaintext), nil
}

// PlainEncryptor tags values instead of encrypting them. DEV_MODE and tests only.
type PlainEncryptor struct{}

func NewPlainEncryptor() PlainEncryptor {
	return PlainEncryptor{}
}

const plainPrefix = "plain:"

func (PlainEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return plainPrefix + plaintext, nil
}

func (PlainEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	if len(ciphertext) >= len(plainPrefix) && ciphertext[:len(plainPrefix)] == plainPrefix {
		return ciphertext[len(plainPrefix):], nil
	}
	return ciphertext, nil
}
