package httpserver

import (
	"context"
	"testing"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/gbilton/elections-2022/internal/platform/config"
)

type mockReadStore struct {
	latestPredictionFn func(ctx context.Context) (*domain.Prediction, error)
	listPredictionsFn  func(ctx context.Context, limit int) ([]domain.Prediction, error)
	latestSnapshotFn   func(ctx context.Context) (*domain.ImportSnapshot, error)
	listSnapshotsFn    func(ctx context.Context, limit int) ([]domain.ImportSnapshot, error)
}

func (m *mockReadStore) LatestPrediction(ctx context.Context) (*domain.Prediction, error) {
	if m.latestPredictionFn != nil {
		return m.latestPredictionFn(ctx)
	}
	return nil, domain.ErrNotFound
}

func (m *mockReadStore) ListPredictions(ctx context.Context, limit int) ([]domain.Prediction, error) {
	if m.listPredictionsFn != nil {
		return m.listPredictionsFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockReadStore) LatestSnapshot(ctx context.Context) (*domain.ImportSnapshot, error) {
	if m.latestSnapshotFn != nil {
		return m.latestSnapshotFn(ctx)
	}
	return nil, domain.ErrNotFound
}

func (m *mockReadStore) ListSnapshots(ctx context.Context, limit int) ([]domain.ImportSnapshot, error) {
	if m.listSnapshotsFn != nil {
		return m.listSnapshotsFn(ctx, limit)
	}
	return nil, nil
}

type testServerOption func(*testServerOptions)

type testServerOptions struct {
	store        readStore
	healthChecks []HealthCheck
	config       *config.Config
}

func withStore(store readStore) testServerOption {
	return func(o *testServerOptions) { o.store = store }
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func withConfig(cfg *config.Config) testServerOption {
	return func(o *testServerOptions) { o.config = cfg }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:           "test",
		Port:             "0",
		PredictionsLimit: 36,
		APIRateLimit:     1000,
		APIRateBurst:     1000,
	}
}

func newTestServer(t *testing.T, opts ...testServerOption) *Server {
	t.Helper()

	o := testServerOptions{store: &mockReadStore{}, config: testConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return NewServer(o.config, o.store, nil, nil, o.healthChecks)
}
