package sandbox

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PoolSize = 1
	cfg.QueueLimit = 4
	cfg.MemoryLimitMB = 0
	cfg.DefaultTimeout = 5 * time.Second
	cfg.MaxTimeout = 10 * time.Second
	return cfg
}

// fakeGateway records requests and answers them with respond
type fakeGateway struct {
	mu       sync.Mutex
	requests []QueryRequest
	respond  func(ctx context.Context, req QueryRequest) (json.RawMessage, error)
}

func (g *fakeGateway) Query(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.respond == nil {
		return json.RawMessage(`null`), nil
	}
	return g.respond(ctx, req)
}

func (g *fakeGateway) Requests() []QueryRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]QueryRequest(nil), g.requests...)
}

// blockingGateway holds every call until release is closed
func blockingGateway(release <-chan struct{}) *fakeGateway {
	return &fakeGateway{
		respond: func(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
			select {
			case <-release:
				return req.Payload, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func newTestPool(t *testing.T, cfg Config, gw ResourceGateway) *Pool {
	t.Helper()
	pool, err := NewPool(cfg, gw, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)
	return pool
}

// run executes code on a single-isolate pool and returns the result
func run(t *testing.T, code string) (*ExecuteResult, error) {
	t.Helper()
	pool := newTestPool(t, testConfig(), nil)
	return pool.Execute(context.Background(), &ExecuteInput{Code: code})
}

var dbResource = ResourceMapping{Name: "db", ResourceID: "res_pg", Type: ResourcePostgres}

var apiResource = ResourceMapping{Name: "stripe", ResourceID: "res_stripe", Type: ResourceStripe}
