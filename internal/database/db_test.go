package database

import (
	"testing"

	"expenseflow/internal/config"
	"expenseflow/internal/logger"
	"expenseflow/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "app", Password: "pw", DBName: "claims", SSLMode: "require",
	})
	assert.Equal(t, "postgres://app:pw@db:5432/claims?sslmode=require", dsn)
}

func TestConnectAndMigrate_SQLite(t *testing.T) {
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", LogLevel: "silent"}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, m := range []any{&model.Company{}, &model.User{}, &model.ApprovalRule{}, &model.RuleApprover{},
		&model.Claim{}, &model.ApprovalEntry{}, &model.AuditLog{}} {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasColumn(&model.Claim{}, "version"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, parseLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, parseLogLevel(""))
}
