// Package secrets resolves credentials from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches secret values by id and caches them for the life of the
// process.
type Resolver struct {
	client SecretsAPI

	mu    sync.Mutex
	cache map[string][]byte
}

// New creates a Resolver using the default AWS config.
func New(ctx context.Context) (*Resolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewFromClient(secretsmanager.NewFromConfig(cfg)), nil
}

// NewFromClient creates a Resolver over an existing client.
func NewFromClient(client SecretsAPI) *Resolver {
	return &Resolver{client: client, cache: make(map[string][]byte)}
}

// Get returns the secret value for id. String secrets are returned as-is;
// binary secrets are returned decoded.
func (r *Resolver) Get(ctx context.Context, id string) ([]byte, error) {
	r.mu.Lock()
	if v, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return nil, fmt.Errorf("reading secret %s: %w", id, err)
	}
	var v []byte
	switch {
	case out.SecretString != nil:
		v = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		v = out.SecretBinary
	default:
		return nil, fmt.Errorf("secret %s has no value", id)
	}

	r.mu.Lock()
	r.cache[id] = v
	r.mu.Unlock()
	return v, nil
}

// GetString returns the secret value for id as a string.
func (r *Resolver) GetString(ctx context.Context, id string) (string, error) {
	v, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// DecodePEM accepts either a PEM block or a base64-encoded PEM block, as
// stored by operators who cannot keep newlines in environment-style secrets.
func DecodePEM(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("empty key material")
	}
	if v[0] == '-' {
		return v, nil
	}
	out, err := base64.StdEncoding.DecodeString(string(v))
	if err != nil {
		return nil, fmt.Errorf("key material is neither PEM nor base64 PEM: %w", err)
	}
	return out, nil
}
