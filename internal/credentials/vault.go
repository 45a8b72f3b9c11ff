package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"
)

const (
	approleSecretIDPath = "auth/approle/role/%s/secret-id"
	approleLoginPath    = "auth/approle/login"
)

// ErrClientInit indicates failure to initialize the Vault API client.
var ErrClientInit = errors.New("vault client initialization failed")

type Option func(*vaultConfig)

type vaultConfig struct {
	address  string
	token    string
	roleID   string
	roleName string
}

// WithAddress sets the Vault server address.
func WithAddress(address string) Option {
	return func(c *vaultConfig) {
		c.address = address
	}
}

// WithToken sets a static token for authentication.
func WithToken(token string) Option {
	return func(c *vaultConfig) {
		c.token = token
	}
}

// WithAppRole enables AppRole login with the given role id and name.
func WithAppRole(roleID, roleName string) Option {
	return func(c *vaultConfig) {
		c.roleID = roleID
		c.roleName = roleName
	}
}

// VaultSource reads the credential bundle from a single Vault KV path.
// All four fields must be present in the secret data; the bounded wait
// covers Vault not having the secret written yet.
type VaultSource struct {
	api    *vault.Client
	config *vaultConfig
	Path   string
	Policy WaitPolicy
}

var _ Source = (*VaultSource)(nil)

// NewVaultSource creates and initializes a Vault-backed Source using the
// provided options. It performs AppRole login if roleID and roleName are
// both set, otherwise a static token (from env or WithToken) is used.
func NewVaultSource(ctx context.Context, path string, policy WaitPolicy, opts ...Option) (*VaultSource, error) {
	cfg := &vaultConfig{
		address: os.Getenv("VAULT_ADDR"),
		token:   os.Getenv("VAULT_TOKEN"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiCfg := vault.DefaultConfig()
	if cfg.address != "" {
		apiCfg.Address = cfg.address
	}

	api, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientInit, err)
	}

	src := &VaultSource{api: api, config: cfg, Path: path, Policy: policy}

	if cfg.token != "" {
		src.api.SetToken(cfg.token)
	}

	if cfg.roleID != "" && cfg.roleName != "" {
		if err := src.loginAppRole(ctx); err != nil {
			return nil, fmt.Errorf("AppRole login failed: %w", err)
		}
	}

	return src, nil
}

// loginAppRole performs AppRole login using the configured roleID and roleName.
func (s *VaultSource) loginAppRole(ctx context.Context) error {
	path := fmt.Sprintf(approleSecretIDPath, s.config.roleName)
	resp, err := s.api.Logical().WriteWithContext(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("generate secret_id: %w", err)
	}
	sid, ok := resp.Data["secret_id"].(string)
	if !ok || sid == "" {
		return fmt.Errorf("no secret_id returned from %s", path)
	}

	loginData := map[string]any{
		"role_id":   s.config.roleID,
		"secret_id": sid,
	}
	loginResp, err := s.api.Logical().WriteWithContext(ctx, approleLoginPath, loginData)
	if err != nil {
		return fmt.Errorf("approle login request: %w", err)
	}
	if loginResp.Auth == nil || loginResp.Auth.ClientToken == "" {
		return fmt.Errorf("no token in login response")
	}
	s.api.SetToken(loginResp.Auth.ClientToken)
	return nil
}

// Load polls the KV path until it holds a complete bundle or the wait is
// exhausted.
func (s *VaultSource) Load(ctx context.Context) (Bundle, error) {
	return s.Policy.poll(ctx, s.readOnce)
}

func (s *VaultSource) readOnce(ctx context.Context) (Bundle, error) {
	secret, err := s.api.Logical().ReadWithContext(ctx, s.Path)
	if err != nil {
		return Bundle{}, err
	}
	if secret == nil {
		return Bundle{}, fmt.Errorf("no data found at path: %s", s.Path)
	}

	data := secret.Data
	// KV v2 nests the payload under "data".
	if nested, ok := secret.Data["data"].(map[string]any); ok {
		data = nested
	}

	var bundle Bundle
	if err := mapstructure.Decode(data, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("invalid data format at path %s: %w", s.Path, err)
	}
	return bundle, nil
}
