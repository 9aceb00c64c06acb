package dataforge

import (
	"context"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/document/patch"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	"github.com/kailas-cloud/dataforge/internal/domain/search/result"
	domusage "github.com/kailas-cloud/dataforge/internal/domain/usage"
	documentuc "github.com/kailas-cloud/dataforge/internal/usecase/document"
	exportuc "github.com/kailas-cloud/dataforge/internal/usecase/export"
	healthuc "github.com/kailas-cloud/dataforge/internal/usecase/health"
)

// --- modelUseCase mock ---

type mockModelUC struct {
	createFn func(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error)
	getFn    func(ctx context.Context, user domain.User, name string) (dommodel.Model, error)
	listFn   func(ctx context.Context, user domain.User) ([]dommodel.Model, error)
	updateFn func(ctx context.Context, user domain.User, name string, spec dommodel.Spec, renames map[string]string) (dommodel.Model, error)
	deleteFn func(ctx context.Context, user domain.User, name string) error
}

func (m *mockModelUC) Create(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error) {
	if m.createFn != nil {
		return m.createFn(ctx, user, spec)
	}
	return dommodel.New(user.ID, spec)
}

func (m *mockModelUC) Get(ctx context.Context, user domain.User, name string) (dommodel.Model, error) {
	if m.getFn != nil {
		return m.getFn(ctx, user, name)
	}
	return dommodel.Model{}, domain.ErrModelNotFound
}

func (m *mockModelUC) List(ctx context.Context, user domain.User) ([]dommodel.Model, error) {
	if m.listFn != nil {
		return m.listFn(ctx, user)
	}
	return nil, nil
}

func (m *mockModelUC) Update(
	ctx context.Context, user domain.User, name string, spec dommodel.Spec, renames map[string]string,
) (dommodel.Model, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, user, name, spec, renames)
	}
	return dommodel.New(user.ID, spec)
}

func (m *mockModelUC) Delete(ctx context.Context, user domain.User, name string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, user, name)
	}
	return nil
}

// --- documentUseCase mock ---

type mockDocumentUC struct {
	getFn        func(ctx context.Context, user domain.User, model, id string) (domdoc.Document, error)
	insertFn     func(ctx context.Context, user domain.User, model string, data map[string]any, opts documentuc.WriteOptions) (domdoc.Document, error)
	insertManyFn func(ctx context.Context, user domain.User, model string, rows []map[string]any, opts documentuc.WriteOptions) ([]batch.Result, error)
	updateFn     func(ctx context.Context, user domain.User, model, id string, data map[string]any) (domdoc.Document, error)
	patchFn      func(ctx context.Context, user domain.User, model, id string, p patch.Patch) (domdoc.Document, error)
	deleteFn     func(ctx context.Context, user domain.User, model, id string) error
}

func (m *mockDocumentUC) Get(ctx context.Context, user domain.User, model, id string) (domdoc.Document, error) {
	if m.getFn != nil {
		return m.getFn(ctx, user, model, id)
	}
	return domdoc.Document{}, domain.ErrDocumentNotFound
}

func (m *mockDocumentUC) Insert(
	ctx context.Context, user domain.User, model string, data map[string]any, opts documentuc.WriteOptions,
) (domdoc.Document, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, user, model, data, opts)
	}
	d, err := domdoc.New(model, user.ID, data)
	return d.WithID("doc-1"), err
}

func (m *mockDocumentUC) InsertMany(
	ctx context.Context, user domain.User, model string, rows []map[string]any, opts documentuc.WriteOptions,
) ([]batch.Result, error) {
	if m.insertManyFn != nil {
		return m.insertManyFn(ctx, user, model, rows, opts)
	}
	return nil, nil
}

func (m *mockDocumentUC) Update(
	ctx context.Context, user domain.User, model, id string, data map[string]any,
) (domdoc.Document, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, user, model, id, data)
	}
	d, err := domdoc.New(model, user.ID, data)
	return d.WithID(id), err
}

func (m *mockDocumentUC) Patch(
	ctx context.Context, user domain.User, model, id string, p patch.Patch,
) (domdoc.Document, error) {
	if m.patchFn != nil {
		return m.patchFn(ctx, user, model, id, p)
	}
	d, err := domdoc.New(model, user.ID, p.Set())
	return d.WithID(id), err
}

func (m *mockDocumentUC) Delete(ctx context.Context, user domain.User, model, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, user, model, id)
	}
	return nil
}

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, user domain.User, req request.Request) (result.Result, error)
}

func (m *mockSearchUC) Search(ctx context.Context, user domain.User, req request.Request) (result.Result, error) {
	return m.searchFn(ctx, user, req)
}

// --- exportUseCase mock ---

type mockExportUC struct {
	exportFn func(ctx context.Context, user domain.User, req exportuc.Request) (exportuc.Result, error)
}

func (m *mockExportUC) Export(ctx context.Context, user domain.User, req exportuc.Request) (exportuc.Result, error) {
	return m.exportFn(ctx, user, req)
}

// --- usageUseCase mock ---

type mockUsageUC struct {
	reportFn func(ctx context.Context, user string) (domusage.Report, error)
}

func (m *mockUsageUC) GetReport(ctx context.Context, user string) (domusage.Report, error) {
	return m.reportFn(ctx, user)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(context.Context) healthuc.Report { return m.report }
