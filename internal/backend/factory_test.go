package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"paydays/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendType(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		assert.True(t, bt.IsValid(), bt)
	}
	assert.False(t, BackendType("mysql").IsValid())
	assert.True(t, PostgresBackend.IsSQL())
	assert.False(t, SheetsBackend.IsSQL())
	assert.Equal(t, []string{"memory", "sqlite", "postgres", "sheets"}, GetBackendTypeStrings())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "mysql"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  config.BackendPostgres,
		PostgresDSN:  "postgres://localhost/paydays",
		AMQPURL:      "amqp://localhost",
		AMQPExchange: "paydays",
		AMQPQueue:    "schedule_events",
	})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://localhost/paydays", cfg.PostgresDSN)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without dsn", Config{Type: PostgresBackend}, true},
		{"sheets without id", Config{Type: SheetsBackend}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x", AMQPExchange: "e"}, true},
		{"unknown", Config{Type: "csv"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bills.csv"),
		[]byte("id,title,amount,due_date,status\nrent,Rent,700,2025-03-10,pending\n"), 0o644))

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	require.NoError(t, err)
	defer res.Close()

	bills, err := res.Source.ListBills(context.Background())
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "rent", bills[0].ID)

	assert.NotNil(t, res.Writer)
	assert.Nil(t, res.Runs, "memory backend keeps no run history")
	assert.Nil(t, res.Publisher)
	assert.Nil(t, res.Repository)
	assert.NoError(t, res.Close())
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "paydays.db")

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)

	require.NotNil(t, res.Repository)
	assert.NotNil(t, res.Runs)
	bills, err := res.Source.ListBills(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bills)

	assert.NoError(t, res.Close())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestBackendResultCloseNil(t *testing.T) {
	var res *BackendResult
	assert.NoError(t, res.Close())
	assert.NoError(t, (&BackendResult{}).Close())
}
