package dataforge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbMongo "github.com/kailas-cloud/dataforge/internal/db/mongo"
	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	"github.com/kailas-cloud/dataforge/internal/domain/condition"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/document/patch"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	"github.com/kailas-cloud/dataforge/internal/domain/search/result"
	domusage "github.com/kailas-cloud/dataforge/internal/domain/usage"
	"github.com/kailas-cloud/dataforge/internal/events"
	documentrepo "github.com/kailas-cloud/dataforge/internal/repository/document"
	filerepo "github.com/kailas-cloud/dataforge/internal/repository/file"
	historyrepo "github.com/kailas-cloud/dataforge/internal/repository/history"
	modelrepo "github.com/kailas-cloud/dataforge/internal/repository/model"
	"github.com/kailas-cloud/dataforge/internal/repository/modelcache"
	documentuc "github.com/kailas-cloud/dataforge/internal/usecase/document"
	exportuc "github.com/kailas-cloud/dataforge/internal/usecase/export"
	filesuc "github.com/kailas-cloud/dataforge/internal/usecase/files"
	healthuc "github.com/kailas-cloud/dataforge/internal/usecase/health"
	historyuc "github.com/kailas-cloud/dataforge/internal/usecase/history"
	modeluc "github.com/kailas-cloud/dataforge/internal/usecase/model"
	"github.com/kailas-cloud/dataforge/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/dataforge/internal/usecase/search"
	usageuc "github.com/kailas-cloud/dataforge/internal/usecase/usage"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultUser             = "sdk"
	defaultExportLimit      = 10000
)

// Internal interfaces, swapped for fakes in tests.
type modelUseCase interface {
	Create(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error)
	Get(ctx context.Context, user domain.User, name string) (dommodel.Model, error)
	List(ctx context.Context, user domain.User) ([]dommodel.Model, error)
	Update(ctx context.Context, user domain.User, name string, spec dommodel.Spec, renames map[string]string) (dommodel.Model, error)
	Delete(ctx context.Context, user domain.User, name string) error
}

type documentUseCase interface {
	Get(ctx context.Context, user domain.User, model, id string) (domdoc.Document, error)
	Insert(ctx context.Context, user domain.User, model string, data map[string]any, opts documentuc.WriteOptions) (domdoc.Document, error)
	InsertMany(ctx context.Context, user domain.User, model string, rows []map[string]any, opts documentuc.WriteOptions) ([]batch.Result, error)
	Update(ctx context.Context, user domain.User, model, id string, data map[string]any) (domdoc.Document, error)
	Patch(ctx context.Context, user domain.User, model, id string, p patch.Patch) (domdoc.Document, error)
	Delete(ctx context.Context, user domain.User, model, id string) error
}

type searchUseCase interface {
	Search(ctx context.Context, user domain.User, req request.Request) (result.Result, error)
}

type exportUseCase interface {
	Export(ctx context.Context, user domain.User, req exportuc.Request) (exportuc.Result, error)
}

type usageUseCase interface {
	GetReport(ctx context.Context, user string) (domusage.Report, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the dataforge SDK entry point. It runs the data layer in process
// against MongoDB, without the HTTP server.
type Client struct {
	store     *dbMongo.Store
	user      domain.User
	modelSvc  modelUseCase
	docSvc    documentUseCase
	searchSvc searchUseCase
	exportSvc exportUseCase
	usageSvc  usageUseCase
	healthSvc healthUseCase
	evaluator *condition.Evaluator
	obs       *observer
}

// New creates a dataforge Client and connects to the database.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		readyIn:   defaultReadinessTimeout,
		user:      defaultUser,
		maxExport: defaultExportLimit,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.uri == "" || cfg.database == "" {
		return nil, errors.New("dataforge: database required (use WithMongo)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := dbMongo.NewStore(ctx, dbMongo.Config{
		URI:            cfg.uri,
		Database:       cfg.database,
		ConnectTimeout: cfg.readyIn,
	})
	if err != nil {
		return nil, fmt.Errorf("dataforge: create mongo store: %w", err)
	}
	if err := store.WaitForReady(ctx, cfg.readyIn); err != nil {
		_ = store.Close(context.Background())
		return nil, fmt.Errorf("dataforge: database not ready: %w", err)
	}

	c, err := wireClient(store, cfg, obs)
	if err != nil {
		_ = store.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func wireClient(store *dbMongo.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	// Internal services log nothing; SDK operations are observed through slog.
	logger := zap.NewNop()

	limits := domain.DefaultLimits()
	limits.MaxDocumentsPerUser = cfg.maxDocuments
	limits.MaxStorageBytes = cfg.maxStorage
	if cfg.searchTimeFloor > 0 {
		limits.SearchTimeoutFloor = cfg.searchTimeFloor
	}

	docRepo := documentrepo.New(store)
	models := modelcache.New(modelrepo.New(store, logger), cfg.schemaCacheTTL, nil, logger)
	builder := pipeline.New(models, limits, logger)

	bus := events.New(logger)
	events.RegisterData(bus)
	if err := historyuc.New(historyrepo.New(store), logger).Register(bus); err != nil {
		return nil, fmt.Errorf("dataforge: register history: %w", err)
	}
	if err := filesuc.NewCleaner(filerepo.New(store), nil, logger).Register(bus); err != nil {
		return nil, fmt.Errorf("dataforge: register file cleanup: %w", err)
	}

	usageSvc := usageuc.New(docRepo, models, limits)
	return &Client{
		store:     store,
		user:      domain.User{ID: cfg.user, Capabilities: cfg.capabilities},
		modelSvc:  modeluc.New(models, docRepo, logger).WithEvents(bus),
		docSvc:    documentuc.New(docRepo, models, limits, logger).WithCapacity(usageSvc).WithEvents(bus),
		searchSvc: searchuc.New(docRepo, builder, limits.SearchTimeoutFloor, logger),
		exportSvc: exportuc.New(docRepo, builder, models, cfg.maxExport, logger),
		usageSvc:  usageSvc,
		healthSvc: healthuc.New(store),
		evaluator: condition.New(logger),
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Close(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", "", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Models returns the model management service.
func (c *Client) Models() *ModelService {
	return &ModelService{svc: c.modelSvc, user: c.user, obs: c.obs}
}

// Documents returns the document service for a given model.
func (c *Client) Documents(model string) *DocumentService {
	return &DocumentService{model: model, svc: c.docSvc, user: c.user, obs: c.obs}
}

// Search starts a query against a given model.
func (c *Client) Search(model string) *SearchBuilder {
	return &SearchBuilder{
		params: request.Params{Model: model},
		svc:    c.searchSvc,
		user:   c.user,
		obs:    c.obs,
	}
}
