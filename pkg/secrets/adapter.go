package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

var (
	ErrProviderUnavailable = errors.New("secret provider unavailable")
	ErrSecretNotFound      = errors.New("secret not found")
)

type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

type Options struct {
	VaultAddr       string
	VaultToken      string
	VaultTokenFile  string
	VaultSecretPath string
	AWSRegion       string
	// RequirePrimary refuses to fall back to the process environment.
	RequirePrimary bool
}

// Adapter resolves secrets from Vault or AWS Secrets Manager when one is
// configured, and from the process environment otherwise.
type Adapter struct {
	primary        Provider
	fallback       Provider
	requirePrimary bool
}

func NewAdapter(ctx context.Context, o Options) (*Adapter, error) {
	var primary Provider
	if o.VaultAddr != "" {
		vp, err := newVaultProvider(ctx, o)
		if err != nil {
			return nil, errors.Wrap(err, "vault provider")
		}
		primary = vp
	} else if o.AWSRegion != "" {
		ap, err := newAWSProvider(ctx, o.AWSRegion)
		if err != nil {
			return nil, errors.Wrap(err, "aws secrets manager provider")
		}
		primary = ap
	}
	if primary == nil && o.RequirePrimary {
		return nil, errors.New("SECRETS_REQUIRE_PRIMARY=true but neither VAULT_ADDR nor AWS_REGION is set")
	}
	a := &Adapter{primary: primary, requirePrimary: o.RequirePrimary}
	if !o.RequirePrimary {
		a.fallback = envProvider{}
	}
	return a, nil
}

// NewAdapterWith builds an adapter from explicit providers.
func NewAdapterWith(primary, fallback Provider, requirePrimary bool) *Adapter {
	return &Adapter{primary: primary, fallback: fallback, requirePrimary: requirePrimary}
}

// GetSecret returns ErrSecretNotFound when no provider holds key; callers
// decide whether a missing secret is fatal.
func (a *Adapter) GetSecret(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if a.primary != nil {
		val, err := a.primary.GetSecret(ctx, key)
		if err == nil && val != "" {
			return val, nil
		}
		if a.requirePrimary {
			if err == nil {
				err = ErrSecretNotFound
			}
			return "", errors.Wrapf(err, "primary provider lookup of %s failed (SECRETS_REQUIRE_PRIMARY=true)", key)
		}
		if err != nil && !errors.Is(err, ErrSecretNotFound) {
			return "", errors.Wrapf(err, "primary provider lookup of %s failed", key)
		}
	}
	if a.fallback != nil {
		return a.fallback.GetSecret(ctx, key)
	}
	if a.primary != nil {
		return "", ErrSecretNotFound
	}
	return "", ErrProviderUnavailable
}

type vaultProvider struct {
	client     *vault.Client
	secretPath string
}

func newVaultProvider(ctx context.Context, o Options) (*vaultProvider, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = o.VaultAddr
	cfg.Timeout = 5 * time.Second
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if o.VaultTokenFile != "" {
		tokenBytes, err := os.ReadFile(o.VaultTokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read VAULT_TOKEN_FILE: %w", err)
		}
		client.SetToken(strings.TrimSpace(string(tokenBytes)))
	} else if o.VaultToken != "" {
		client.SetToken(o.VaultToken)
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(healthCtx); err != nil {
		return nil, fmt.Errorf("vault health check failed: %w", err)
	}
	path := o.VaultSecretPath
	if path == "" {
		path = "secret/data/sealbin"
	}
	return &vaultProvider{client: client, secretPath: path}, nil
}

func (v *vaultProvider) GetSecret(ctx context.Context, key string) (string, error) {
	path := fmt.Sprintf("%s/%s", v.secretPath, key)
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", errors.New("vault: invalid secret format")
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", errors.New("vault: value not found")
	}
	return value, nil
}

type awsProvider struct {
	client *secretsmanager.Client
}

func newAWSProvider(ctx context.Context, region string) (*awsProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &awsProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func (a *awsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &key,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}
	if result.SecretString == nil {
		return "", errors.New("secret is binary, not string")
	}
	return *result.SecretString, nil
}

type envProvider struct{}

func (envProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", ErrSecretNotFound
	}
	return val, nil
}
