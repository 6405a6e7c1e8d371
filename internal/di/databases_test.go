package di

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	strategy, err := config.LoadStrategy("")
	require.NoError(t, err)
	return &config.Config{
		DataDir:      t.TempDir(),
		PriceSource:  config.PriceSourceCSV,
		CSVPrefix:    "COINBASE_SPOT_",
		CSVSuffix:    "_USD",
		Schedule:     "0 0 1 * * MON",
		OrdersFormat: "json",
		Port:         8001,
		Strategy:     *strategy,
	}
}

func TestInitializeDatabases_CSVNeedsNoDatabase(t *testing.T) {
	container, err := InitializeDatabases(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, container.HistoryDB)
	assert.NoError(t, container.Close())
}

func TestInitializeDatabases_SQLite(t *testing.T) {
	_, path, cleanup := testingpkg.NewHistoryDB(t)
	defer cleanup()

	cfg := testConfig(t)
	cfg.PriceSource = config.PriceSourceSQLite
	cfg.HistoryDB = path

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container.HistoryDB)
	defer container.Close()

	assert.Equal(t, database.ProfileReadOnly, container.HistoryDB.Profile())
}

func TestInitializeDatabases_MissingHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.PriceSource = config.PriceSourceSQLite
	cfg.HistoryDB = filepath.Join(cfg.DataDir, "missing.db")

	_, err := InitializeDatabases(cfg, zerolog.Nop())
	assert.Error(t, err)
}
