package api

import (
	"math/rand/v2"
	"net/http"
	"testing"

	"github.com/npezzotti/go-crabs/internal/clock"
	"github.com/npezzotti/go-crabs/internal/config"
	"github.com/npezzotti/go-crabs/internal/database"
	"github.com/npezzotti/go-crabs/internal/messaging"
	"github.com/npezzotti/go-crabs/internal/presence"
	"github.com/npezzotti/go-crabs/internal/server"
	"github.com/npezzotti/go-crabs/internal/stats"
	"github.com/npezzotti/go-crabs/internal/testutil"
	"github.com/stretchr/testify/assert"
)

var testConfig = &config.Config{
	ServerAddr:     "localhost:8080",
	Store:          config.StoreMemory,
	SigningKey:     []byte("test-signing-key"),
	AllowedOrigins: []string{"http://localhost:3000"},
}

type testApp struct {
	*CrabApp
	clock *clock.Fake
	repo  database.CrabRepository
}

// newTestApp wires an app over the in-memory store and a fake clock. The
// realtime hub is not started unless the test runs it.
func newTestApp(t *testing.T, repo database.CrabRepository) *testApp {
	t.Helper()

	if repo == nil {
		repo = database.NewMemCrabRepository()
	}
	clk := clock.NewFake(testutil.Epoch)
	logger := testutil.TestLogger(t)
	mux := http.NewServeMux()

	sp := stats.NewStatsUpdater(mux)
	sp.Run()
	t.Cleanup(sp.Stop)

	p := presence.NewManager(repo, clk, rand.New(rand.NewPCG(7, 11)), logger)
	m := messaging.NewManager(repo, clk, logger)
	cs := server.NewCrabServer(logger, p, m, sp)

	return &testApp{
		CrabApp: NewCrabApp(mux, logger, cs, repo, p, m, sp, testConfig),
		clock:   clk,
		repo:    repo,
	}
}

func TestNewCrabApp(t *testing.T) {
	app := newTestApp(t, nil)

	assert.NotNil(t, app.srv, "expected http server to be initialized")
	assert.NotNil(t, app.log, "expected logger to be set")
	assert.NotNil(t, app.cs, "expected realtime hub to be set")
	assert.Equal(t, app.repo, app.db, "expected db to be set")
	assert.Equal(t, testConfig.SigningKey, app.signingKey)
	assert.Equal(t, testConfig.AllowedOrigins, app.allowedOrigins)
	assert.Equal(t, testConfig.ServerAddr, app.srv.Addr, "expected server address to match config")
	assert.NotNil(t, app.Handler())
}
