package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryDriverDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, c.StoreDriver)
	assert.Equal(t, "al_product-cat", c.Taxonomy.Category)
	assert.Equal(t, "al_product-attributes", c.Taxonomy.Attribute)
	assert.Equal(t, "language", c.Taxonomy.Language)
	assert.Equal(t, "en", c.Media.PrimaryLanguage)
	assert.Equal(t, 30*time.Second, c.Media.Timeout)
	assert.Equal(t, "", c.Redis.Addr)
	assert.Same(t, Get(), Get())
}

func TestLoad_PostgresRequiresConnection(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPostgresNotConfigured))
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreDriver")
}

func TestPostgresConfig_DSN(t *testing.T) {
	pc := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "catalog", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=catalog sslmode=disable", pc.DSN())
}
