// Package bootstrap provides dependency initialization for the ClearMedia API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/maauso/clearmedia-api/internal/billing"
	"github.com/maauso/clearmedia-api/internal/config"
	"github.com/maauso/clearmedia-api/internal/credit"
	"github.com/maauso/clearmedia-api/internal/identity"
	"github.com/maauso/clearmedia-api/internal/imgproc"
	"github.com/maauso/clearmedia-api/internal/job"
	"github.com/maauso/clearmedia-api/internal/mps"
	"github.com/maauso/clearmedia-api/internal/payment"
	"github.com/maauso/clearmedia-api/internal/processor"
	"github.com/maauso/clearmedia-api/internal/server"
	"github.com/maauso/clearmedia-api/internal/storage"
	"github.com/maauso/clearmedia-api/internal/store"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Ledger     credit.Ledger
	Jobs       job.Repository
	Payments   payment.Repository
	Submitter  *job.Submitter
	Reconciler *job.ProgressReconciler
	Webhooks   *payment.WebhookReconciler
	// Checkout is nil when CREEM_API_KEY is not set.
	Checkout    *payment.CheckoutClient
	Products    payment.ProductCredits
	Objects     storage.ObjectStore
	Resolver    *identity.HeaderResolver
	RateLimiter *server.RateLimiter
	// Store is nil for DB_DRIVER=memory.
	Store *store.Store
}

// NewDependencies creates and initializes all dependencies for the application.
// The caller must call Close when done.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	if err := deps.initPersistence(ctx, cfg, logger); err != nil {
		return nil, err
	}

	objects, err := initStorage(ctx, cfg, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Objects = objects

	router, err := initProcessors(cfg, objects, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}

	policies := Policies(cfg, router.Supports)
	deps.Submitter = job.NewSubmitter(deps.Ledger, deps.Jobs, router, logger,
		job.WithPolicies(policies),
	)
	deps.Reconciler = job.NewProgressReconciler(deps.Jobs, router, logger,
		job.WithReconcilerPolicies(policies),
		job.WithMaxPollAttempts(cfg.PollMaxAttempts),
		job.WithMaxPollDuration(cfg.PollMaxDuration),
	)

	// Resolved once; the webhook path never re-reads it.
	products, err := cfg.ProductCredits()
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("load product credits: %w", err)
	}
	deps.Products = products

	deps.Webhooks, err = payment.NewWebhookReconciler(deps.Payments, products, cfg.CreemWebhookSecret, logger)
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("create webhook reconciler: %w", err)
	}

	if cfg.CheckoutEnabled() {
		deps.Checkout, err = payment.NewCheckoutClient(cfg.CreemAPIURL, cfg.CreemAPIKey,
			payment.WithSuccessURL(cfg.CreemSuccessURL),
		)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("create checkout client: %w", err)
		}
	} else {
		logger.Warn("CREEM_API_KEY not set, checkout disabled")
	}

	deps.Resolver = identity.NewHeaderResolver(cfg.IdentityHeader)
	if cfg.PollRateLimit > 0 {
		deps.RateLimiter = server.NewRateLimiter(rate.Limit(cfg.PollRateLimit), max(cfg.PollRateBurst, 1))
		logger.Info("progress rate limit configured",
			slog.Float64("rate", float64(deps.RateLimiter.Rate())),
			slog.Int("burst", deps.RateLimiter.Burst()),
		)
	}

	return deps, nil
}

// ServerDependencies returns the services the HTTP handlers call.
func (d *Dependencies) ServerDependencies() server.Dependencies {
	sd := server.Dependencies{
		Submitter:  d.Submitter,
		Reconciler: d.Reconciler,
		Jobs:       d.Jobs,
		Ledger:     d.Ledger,
		Webhooks:   d.Webhooks,
		Products:   d.Products,
		Objects:    d.Objects,
	}
	// A nil *CheckoutClient must not become a non-nil interface.
	if d.Checkout != nil {
		sd.Checkout = d.Checkout
	}
	if d.Store != nil {
		sd.Ping = d.Store.Ping
	}
	return sd
}

// Close releases the database and stops background goroutines.
func (d *Dependencies) Close() error {
	if d.RateLimiter != nil {
		d.RateLimiter.Stop()
	}
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}

// initPersistence opens the configured ledger and repositories.
func (d *Dependencies) initPersistence(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DBDriver == config.DriverMemory {
		ledger := credit.NewMemoryLedger()
		d.Ledger = ledger
		d.Jobs = job.NewMemoryRepository(ledger)
		d.Payments = payment.NewMemoryRepository(ledger)
		logger.Warn("in-memory persistence configured, state is lost on restart")
		return nil
	}

	s, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return fmt.Errorf("migrate database: %w", err)
	}

	d.Store = s
	d.Ledger = s
	d.Jobs = s
	d.Payments = s.Payments()
	logger.Info("database configured",
		slog.String("driver", cfg.DBDriver),
		slog.String("dialect", string(s.Dialect())),
	)
	return nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", s3Store.Bucket()),
			slog.String("region", s3Store.Region()),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.StorageDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("storage_dir", localStore.Root()),
	)
	return localStore, nil
}

// initProcessors builds the kind router over the configured vendors.
func initProcessors(cfg *config.Config, objects storage.ObjectStore, logger *slog.Logger) (*processor.Router, error) {
	definitions, err := cfg.Definitions()
	if err != nil {
		return nil, err
	}

	mpsClient, err := mps.NewClient(cfg.MPSBaseURL, cfg.MPSAPIKey)
	if err != nil {
		return nil, fmt.Errorf("create media-processing client: %w", err)
	}

	bucket, region := cfg.MPSBucket, cfg.MPSRegion
	if bucket == "" {
		bucket = cfg.S3Bucket
	}
	if region == "" {
		region = cfg.S3Region
	}

	router := processor.NewRouter()
	router.Handle(processor.NewMPSAdapter(mpsClient, processor.MPSConfig{
		Bucket:      bucket,
		Region:      region,
		OutputDir:   cfg.MPSOutputDir,
		Definitions: definitions,
	}, objects.PublicURL), kindNames(job.VideoKinds)...)

	if !cfg.QueueEnabled() {
		logger.Warn("QUEUE_BASE_URL or QUEUE_TOKEN not set, image and document kinds disabled")
		return router, nil
	}

	queueClient, err := imgproc.NewClient(cfg.QueueBaseURL, cfg.QueueToken)
	if err != nil {
		return nil, fmt.Errorf("create task queue client: %w", err)
	}
	queue := processor.NewQueueAdapter(queueClient, nil, sourceURL(objects))
	router.Handle(queue, queue.Kinds()...)
	return router, nil
}

// Policies returns the billing policy of every kind some processor can run,
// with the video ceilings taken from cfg.
func Policies(cfg *config.Config, supported func(kind string) bool) map[job.Kind]billing.Policy {
	policies := job.DefaultPolicies()
	for kind, p := range policies {
		if !supported(string(kind)) {
			delete(policies, kind)
			continue
		}
		if p.Unit == billing.UnitSeconds {
			p.FreeTrialCeiling = cfg.FreeTrialMaxSeconds
			p.MeteredCeiling = cfg.MeteredMaxSeconds
			policies[kind] = p
		}
	}
	return policies
}

func kindNames(kinds []job.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// sourceURL resolves uploaded object keys to URLs queue workers can fetch.
func sourceURL(objects storage.ObjectStore) func(ref string) string {
	return func(ref string) string {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			return ref
		}
		return objects.PublicURL(ref)
	}
}
