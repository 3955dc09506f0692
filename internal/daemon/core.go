package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolserver/internal/config"
	"github.com/harun/toolserver/pkg/auth"
	"github.com/harun/toolserver/pkg/dispatcher"
	"github.com/harun/toolserver/pkg/embedding"
	"github.com/harun/toolserver/pkg/objectstore"
	"github.com/harun/toolserver/pkg/scriptruntime"
	"github.com/harun/toolserver/pkg/toolexecutor"
	"github.com/harun/toolserver/pkg/toolsync"
)

// Core holds the modules shared by the server and the one-shot commands.
type Core struct {
	Registry     *toolexecutor.Registry
	Runtime      *scriptruntime.Runtime
	Embedder     *embedding.Embedder
	Store        objectstore.Store
	Synchronizer *toolsync.Synchronizer
	Dispatcher   *dispatcher.Dispatcher
	Validator    *auth.Validator
}

// BuildCore wires the tool registry, script runtime and embedder, loads the
// bundled scripts and connects the configured object store.
func BuildCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	c := &Core{
		Registry: toolexecutor.NewRegistry(),
		Runtime:  scriptruntime.New(),
	}

	if err := toolexecutor.RegisterNativeTools(c.Registry); err != nil {
		return nil, fmt.Errorf("failed to register native tools: %w", err)
	}

	c.Embedder = embedding.New(c.Registry, c.Runtime)

	if cfg.Scripts.Bundled {
		// a broken bundled script does not keep the others out
		if _, err := c.Embedder.LoadBundled(ctx, embedding.BundledScripts()); err != nil {
			log.Warn().Err(err).Msg("Some bundled scripts failed to load")
		}
	}

	store, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	c.Store = store

	syncConfig := toolsync.Config{
		Prefix:           cfg.Store.Prefix,
		Extension:        cfg.Store.Extension,
		FetchConcurrency: cfg.Sync.FetchConcurrency,
	}
	if cfg.Store.Kind == config.StoreS3 {
		syncConfig.Bucket = cfg.Store.Bucket
	}
	c.Synchronizer = toolsync.New(c.Store, c.Embedder, syncConfig)

	c.Dispatcher = dispatcher.New(c.Registry, c.Runtime, cfg.Server.RequestTimeout)

	if cfg.Auth.SecretHex != "" {
		c.Validator, err = auth.NewValidator(cfg.Auth.SecretHex)
		if err != nil {
			return nil, fmt.Errorf("failed to create token validator: %w", err)
		}
	}

	return c, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig) (objectstore.Store, error) {
	switch cfg.Kind {
	case config.StoreLocal:
		store, err := objectstore.NewLocalStore(cfg.LocalDir, cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		return store, nil

	case config.StoreS3:
		store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
			PageSize:        int32(cfg.PageSize),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 store: %w", err)
		}
		return store, nil
	}

	return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}
