package chi

import (
	"context"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/document/patch"
	domhist "github.com/kailas-cloud/dataforge/internal/domain/history"
	"github.com/kailas-cloud/dataforge/internal/domain/job"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	"github.com/kailas-cloud/dataforge/internal/domain/search/result"
	domusage "github.com/kailas-cloud/dataforge/internal/domain/usage"
	"github.com/kailas-cloud/dataforge/internal/importsrc"
	documentuc "github.com/kailas-cloud/dataforge/internal/usecase/document"
	exportuc "github.com/kailas-cloud/dataforge/internal/usecase/export"
	healthuc "github.com/kailas-cloud/dataforge/internal/usecase/health"
)

type mockModels struct {
	createFn func(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error)
	getFn    func(ctx context.Context, user domain.User, name string) (dommodel.Model, error)
	listFn   func(ctx context.Context, user domain.User) ([]dommodel.Model, error)
	updateFn func(ctx context.Context, user domain.User, name string, spec dommodel.Spec, renames map[string]string) (dommodel.Model, error)
	deleteFn func(ctx context.Context, user domain.User, name string) error
}

func (m *mockModels) Create(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error) {
	if m.createFn != nil {
		return m.createFn(ctx, user, spec)
	}
	return dommodel.New(user.ID, spec)
}

func (m *mockModels) Get(ctx context.Context, user domain.User, name string) (dommodel.Model, error) {
	if m.getFn != nil {
		return m.getFn(ctx, user, name)
	}
	return dommodel.Model{}, domain.ErrModelNotFound
}

func (m *mockModels) List(ctx context.Context, user domain.User) ([]dommodel.Model, error) {
	if m.listFn != nil {
		return m.listFn(ctx, user)
	}
	return nil, nil
}

func (m *mockModels) Update(
	ctx context.Context, user domain.User, name string, spec dommodel.Spec, renames map[string]string,
) (dommodel.Model, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, user, name, spec, renames)
	}
	return dommodel.New(user.ID, spec)
}

func (m *mockModels) Delete(ctx context.Context, user domain.User, name string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, user, name)
	}
	return nil
}

type mockDocuments struct {
	getFn        func(ctx context.Context, user domain.User, model, id string) (domdoc.Document, error)
	insertFn     func(ctx context.Context, user domain.User, model string, data map[string]any, opts documentuc.WriteOptions) (domdoc.Document, error)
	insertManyFn func(ctx context.Context, user domain.User, model string, rows []map[string]any, opts documentuc.WriteOptions) ([]batch.Result, error)
	updateFn     func(ctx context.Context, user domain.User, model, id string, data map[string]any) (domdoc.Document, error)
	patchFn      func(ctx context.Context, user domain.User, model, id string, p patch.Patch) (domdoc.Document, error)
	deleteFn     func(ctx context.Context, user domain.User, model, id string) error
}

func (m *mockDocuments) Get(ctx context.Context, user domain.User, model, id string) (domdoc.Document, error) {
	if m.getFn != nil {
		return m.getFn(ctx, user, model, id)
	}
	return domdoc.Document{}, domain.ErrDocumentNotFound
}

func (m *mockDocuments) Insert(
	ctx context.Context, user domain.User, model string, data map[string]any, opts documentuc.WriteOptions,
) (domdoc.Document, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, user, model, data, opts)
	}
	d, err := domdoc.New(model, user.ID, data)
	return d.WithID("doc-1"), err
}

func (m *mockDocuments) InsertMany(
	ctx context.Context, user domain.User, model string, rows []map[string]any, opts documentuc.WriteOptions,
) ([]batch.Result, error) {
	if m.insertManyFn != nil {
		return m.insertManyFn(ctx, user, model, rows, opts)
	}
	return nil, nil
}

func (m *mockDocuments) Update(
	ctx context.Context, user domain.User, model, id string, data map[string]any,
) (domdoc.Document, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, user, model, id, data)
	}
	d, err := domdoc.New(model, user.ID, data)
	return d.WithID(id), err
}

func (m *mockDocuments) Patch(
	ctx context.Context, user domain.User, model, id string, p patch.Patch,
) (domdoc.Document, error) {
	if m.patchFn != nil {
		return m.patchFn(ctx, user, model, id, p)
	}
	d, err := domdoc.New(model, user.ID, p.Set())
	return d.WithID(id), err
}

func (m *mockDocuments) Delete(ctx context.Context, user domain.User, model, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, user, model, id)
	}
	return nil
}

type mockSearch struct {
	searchFn func(ctx context.Context, user domain.User, req request.Request) (result.Result, error)
}

func (m *mockSearch) Search(ctx context.Context, user domain.User, req request.Request) (result.Result, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, user, req)
	}
	return result.New(nil, 0), nil
}

type mockImports struct {
	startFn    func(ctx context.Context, user domain.User, ds importsrc.Dataset) (job.Job, error)
	snapshotFn func(ctx context.Context, user domain.User, id string) (job.Job, error)
	watchFn    func(ctx context.Context, user domain.User, id string) <-chan job.Job
}

func (m *mockImports) Start(ctx context.Context, user domain.User, ds importsrc.Dataset) (job.Job, error) {
	if m.startFn != nil {
		return m.startFn(ctx, user, ds)
	}
	return job.New("job-1", user.ID), nil
}

func (m *mockImports) Snapshot(ctx context.Context, user domain.User, id string) (job.Job, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx, user, id)
	}
	return job.NotFound(id), nil
}

func (m *mockImports) Watch(ctx context.Context, user domain.User, id string) <-chan job.Job {
	if m.watchFn != nil {
		return m.watchFn(ctx, user, id)
	}
	ch := make(chan job.Job, 1)
	ch <- job.NotFound(id)
	close(ch)
	return ch
}

type mockExports struct {
	exportFn func(ctx context.Context, user domain.User, req exportuc.Request) (exportuc.Result, error)
}

func (m *mockExports) Export(ctx context.Context, user domain.User, req exportuc.Request) (exportuc.Result, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx, user, req)
	}
	return exportuc.Result{}, nil
}

type mockHistory struct {
	listFn func(ctx context.Context, user domain.User, model, docID string, limit int64) ([]domhist.Entry, error)
}

func (m *mockHistory) List(ctx context.Context, user domain.User, model, docID string, limit int64) ([]domhist.Entry, error) {
	if m.listFn != nil {
		return m.listFn(ctx, user, model, docID, limit)
	}
	return nil, nil
}

type mockUsage struct {
	reportFn func(ctx context.Context, user string) (domusage.Report, error)
}

func (m *mockUsage) GetReport(ctx context.Context, user string) (domusage.Report, error) {
	return m.reportFn(ctx, user)
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type mockLimiter struct {
	limit   int64
	allowFn func(ctx context.Context, user string) (time.Duration, error)
}

func (m *mockLimiter) Allow(ctx context.Context, user string) (time.Duration, error) {
	return m.allowFn(ctx, user)
}

func (m *mockLimiter) Limit() int64 { return m.limit }
