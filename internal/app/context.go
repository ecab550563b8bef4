package app

import (
	"context"
	"errors"
	"fmt"

	"pageone/internal/config"
	"pageone/internal/repo"
)

const DefaultAppName = "pageone"

// ResolveConfig loads the active config from the DB, seeding it on first
// use. A pageone.yml in the workspace wins over built-in defaults when
// seeding, so a fresh checkout with a config file behaves as configured.
func ResolveConfig(ctx context.Context, workspace, name string, r repo.Repo) (*config.Config, error) {
	if name == "" {
		name = DefaultAppName
	}
	cfg, err := r.GetAppConfig(ctx, name)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		seed = config.Default(name)
	}
	if err := r.UpsertAppConfig(ctx, name, seed); err != nil {
		return nil, fmt.Errorf("seed app config: %w", err)
	}
	return seed, nil
}
