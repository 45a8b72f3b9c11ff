package cmd

import (
	"context"
	"fmt"

	"github.com/kebairia/backupd/internal/artifact"
	"github.com/kebairia/backupd/internal/config"
	"github.com/kebairia/backupd/internal/credentials"
	"github.com/kebairia/backupd/internal/database"
	"github.com/kebairia/backupd/internal/health"
	"github.com/kebairia/backupd/internal/pipeline"
	"github.com/kebairia/backupd/internal/restore"
	"github.com/kebairia/backupd/internal/retention"
)

// runtime bundles the wired components every subcommand needs.
type runtime struct {
	cfg       config.Config
	creds     credentials.Source
	client    database.Client
	validator *artifact.Validator
	store     *retention.Store
	state     *health.State
}

// newRuntime loads the config at configPath and wires the shared components.
func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	var cfg config.Config
	if err := cfg.Load(configPath); err != nil {
		return nil, err
	}

	store, err := retention.NewStore(cfg.Backup.Root)
	if err != nil {
		return nil, err
	}

	creds, err := newCredentialSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := database.NewSurreal(cfg.Database.Endpoint,
		database.WithTimeout(cfg.Database.Timeout),
		database.WithProbePolicy(
			cfg.Database.ProbeAttempts,
			cfg.Database.ProbeBackoff,
			cfg.Database.ProbeTimeout,
		),
		database.WithBinary(cfg.Database.Binary),
	)

	return &runtime{
		cfg:       cfg,
		creds:     creds,
		client:    client,
		validator: artifact.NewValidator(cfg.Backup.MarkerToken),
		store:     store,
		state:     health.NewState(cfg.Health.SnapshotPath),
	}, nil
}

func newCredentialSource(ctx context.Context, cfg config.Config) (credentials.Source, error) {
	policy := credentials.WaitPolicy{
		Timeout:  cfg.Credentials.WaitTimeout,
		Interval: cfg.Credentials.PollInterval,
	}

	switch cfg.Credentials.Source {
	case "file":
		return credentials.NewFileSource(cfg.Credentials.Path, policy), nil
	case "vault":
		opts := []credentials.Option{credentials.WithAddress(cfg.Vault.Address)}
		if cfg.Vault.RoleID != "" && cfg.Vault.ApproleName != "" {
			opts = append(opts, credentials.WithAppRole(cfg.Vault.RoleID, cfg.Vault.ApproleName))
		}
		return credentials.NewVaultSource(ctx, cfg.Credentials.Path, policy, opts...)
	}
	return nil, fmt.Errorf("unknown credentials source %q", cfg.Credentials.Source)
}

func (rt *runtime) newPipeline() *pipeline.Pipeline {
	return pipeline.New(rt.creds, rt.client, rt.validator, rt.store, rt.state, rt.cfg.Backup.ScratchDir)
}

func (rt *runtime) newRestore() *restore.Workflow {
	return restore.New(rt.creds, rt.client, rt.validator, rt.store, rt.cfg.Backup.ScratchDir)
}
