package database

import (
	"log/slog"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
)

func TestNewConnection(t *testing.T) {
	config := DBConfig{
		Url:      "invalid connection",
		MaxConns: 200,
	}

	_, err := NewConnection(config)
	assert.Error(t, err)
}

func TestOpenConnection(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	db, err := OpenConnection(logger, dialector)
	assert.NoError(t, err)
	assert.NotNil(t, db)
	assert.NotNil(t, db.Connection)
	assert.NotNil(t, db.logger)
	assert.True(t, db.Connection.Config.SkipDefaultTransaction)
}
