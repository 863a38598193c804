package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"expenseflow/internal/config"
	"expenseflow/internal/database"
	"expenseflow/internal/logger"
	"expenseflow/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Wiring(t *testing.T) {
	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", LogLevel: "silent"}

	db, err := database.Connect(cfg.Database, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { closeDB(db) })

	router := newRouter(cfg, db, websocket.NewHub(logger.Discard()), logger.Discard())

	tests := []struct {
		path string
		code int
	}{
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/claims", http.StatusUnauthorized},
		{"/api/approval-rules", http.StatusUnauthorized},
		{"/api/approvers", http.StatusUnauthorized},
		{"/api/audit-logs", http.StatusUnauthorized},
		{"/ws", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestReadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"companies":[{
		"id":"7b0f7c1e-58a4-4d4f-9a59-3f4c0f0b2a11","name":"Acme","base_currency":"USD",
		"users":[{"id":"2d3c1f7a-9a0e-4b1b-8c55-5b1b2f8c9d10","name":"Maya","email":"maya@acme.test","role":"manager"}]
	}]}`), 0o600))

	file, err := readSeedFile(path)
	require.NoError(t, err)
	require.Len(t, file.Companies, 1)
	assert.Equal(t, "Acme", file.Companies[0].Name)
	assert.Len(t, file.Companies[0].Users, 1)

	_, err = readSeedFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
