package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"petlabel/internal/config"
	"petlabel/internal/store"
)

type commandContext struct {
	configFlag *string
	workerFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, workerFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		workerFlag: workerFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withStore opens the database for the duration of one command.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

// withLockedStore additionally holds the data-directory lock, serializing
// commands that mutate the pool against each other.
func (c *commandContext) withLockedStore(fn func(*config.Config, *store.Store) error) error {
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		lock := flock.New(cfg.LockPath())
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another petlabel process holds %s", cfg.LockPath())
		}
		defer lock.Unlock()
		return fn(cfg, st)
	})
}

// actingWorker resolves the --worker flag to an account. Commands that need
// an identity fail without it.
func (c *commandContext) actingWorker(ctx context.Context, st *store.Store) (*store.Worker, error) {
	var username string
	if c.workerFlag != nil {
		username = strings.TrimSpace(*c.workerFlag)
	}
	if username == "" {
		return nil, errors.New("worker identity required; pass --worker <username>")
	}
	worker, err := st.GetWorkerByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("look up worker: %w", err)
	}
	if worker == nil {
		return nil, fmt.Errorf("unknown worker %q", username)
	}
	if !worker.Active {
		return nil, fmt.Errorf("worker %q is deactivated", username)
	}
	return worker, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
