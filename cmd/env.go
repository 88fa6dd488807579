package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/map-review/internal/blob"
	"github.com/sells-group/map-review/internal/competitor"
	"github.com/sells-group/map-review/internal/pipeline"
	"github.com/sells-group/map-review/internal/policy"
	"github.com/sells-group/map-review/internal/store"
	anthropicpkg "github.com/sells-group/map-review/pkg/anthropic"
)

// assessEnv holds the initialized store, blob backend, and pipeline shared
// by the serve and assess commands.
type assessEnv struct {
	Store    store.Store
	Blob     blob.Store // may be nil
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *assessEnv) Close() {
	if e.Blob != nil {
		_ = e.Blob.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "mapreview.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, optional blob retention, competitor sources,
// and the classifier, then builds the pipeline. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*assessEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var blobStore blob.Store
	if cfg.Blob.Bucket != "" {
		blobStore, err = blob.NewGCS(ctx, cfg.Blob.Bucket, cfg.Blob.CredentialsFile, cfg.Blob.CDNDomain)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("document retention enabled", zap.String("bucket", cfg.Blob.Bucket))
	} else {
		zap.L().Debug("MAPREVIEW_BLOB_BUCKET not set, uploaded documents are not retained")
	}

	var anthropicClient anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		anthropicClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("MAPREVIEW_ANTHROPIC_KEY not set, policy analysis disabled")
	}
	classifier := policy.NewClassifier(anthropicClient, policy.Config{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		MaxChars:  cfg.Assess.MaxPolicyChars,
		Timeout:   time.Duration(cfg.Assess.ClassifyTimeoutSecs) * time.Second,
	})

	sources := []competitor.Source{
		competitor.NewWalmart(cfg.Walmart.SearchBaseURL, time.Duration(cfg.Walmart.TimeoutSecs)*time.Second),
		competitor.NewAmazon(),
	}

	return &assessEnv{
		Store:    st,
		Blob:     blobStore,
		Pipeline: pipeline.New(st, blobStore, sources, classifier),
	}, nil
}
