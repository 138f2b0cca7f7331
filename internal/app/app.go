// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/tafuta/tafuta/internal/bluesky"
	"github.com/tafuta/tafuta/internal/cache"
	"github.com/tafuta/tafuta/internal/config"
	"github.com/tafuta/tafuta/internal/crawler"
	"github.com/tafuta/tafuta/internal/discovery"
	"github.com/tafuta/tafuta/internal/logging"
	"github.com/tafuta/tafuta/internal/metrics"
	"github.com/tafuta/tafuta/internal/pacing"
	"github.com/tafuta/tafuta/internal/publisher"
	pubsubpub "github.com/tafuta/tafuta/internal/publisher/pubsub"
	"github.com/tafuta/tafuta/internal/storage"
	"github.com/tafuta/tafuta/internal/storage/gcs"
	"github.com/tafuta/tafuta/internal/storage/local"
	"github.com/tafuta/tafuta/internal/storage/memory"
	"github.com/tafuta/tafuta/internal/swahili"
)

// App holds the shared, long-lived services. It is initialized once at
// startup and passed to the commands that need it.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Discovery *discovery.Service

	pubsubClient  *gpubsub.Client
	storageClient *gstorage.Client
}

// New builds the full service graph from configuration. It fails fast: a
// misconfigured backend or rejected Bluesky credentials abort startup rather
// than surfacing mid-request.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing services",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("bluesky_host", cfg.Bluesky.Host))

	metrics.Init()

	a := &App{Config: cfg, Logger: logger}

	blobs, err := a.newBlobStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	events, err := a.newPublisher(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init publisher: %w", err)
	}

	classifier, err := swahili.NewRemoteClassifier(cfg.Classifier.URL, cfg.ClassifierTimeout())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	validator := swahili.NewValidator(classifier, logger)

	client := bluesky.NewClient(cfg.Bluesky.Host, bluesky.WithTimeout(cfg.BlueskyTimeout()))
	if cfg.Bluesky.Identifier != "" {
		if err := client.Login(ctx, cfg.Bluesky.Identifier, cfg.Bluesky.AppPassword); err != nil {
			a.Close()
			return nil, fmt.Errorf("bluesky login: %w", err)
		}
		logger.Info("bluesky session established", zap.String("did", client.DID()))
	}

	pacer := pacing.New(pacing.Config{
		ProbeGap:  time.Duration(cfg.Pacing.ProbeMs) * time.Millisecond,
		SearchGap: time.Duration(cfg.Pacing.SearchMs) * time.Millisecond,
		CrawlGap:  time.Duration(cfg.Pacing.CrawlMs) * time.Millisecond,
	}, pacing.WithObserver(func(class pacing.Class, delay time.Duration) {
		metrics.ObservePacingDelay(class.String(), delay)
	}))

	seeds := cfg.Discovery.SeedHandles
	if len(seeds) == 0 {
		seeds = crawler.DefaultSeedHandles
	}
	store := cache.NewStore(blobs, cfg.Storage.BlobKey, seeds, logger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	crawl := crawler.New(client, validator, pacer, rng, logger)
	a.Discovery = discovery.New(client, crawl, store, validator, pacer, events, rng, logger)

	logger.Info("services initialized")
	return a, nil
}

func (a *App) newBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.storageClient = client
		return gcs.New(ctx, client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "memory":
		a.Logger.Warn("using in-memory storage, the profile cache will not survive restarts")
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func (a *App) newPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, error) {
	if cfg.PubSub.ProjectID == "" {
		return publisher.Noop{}, nil
	}
	if cfg.PubSub.TopicName == "" {
		return nil, fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.Logger.Info("pubsub publisher enabled", zap.String("topic", cfg.PubSub.TopicName))
	return pubsubpub.New(client.Topic(cfg.PubSub.TopicName)), nil
}

// Close shuts down the remote clients and flushes the logger.
func (a *App) Close() {
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("closing pubsub client", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.Logger.Warn("closing storage client", zap.Error(err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync() // best-effort flush
	}
}
