package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cash-ledger/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "cash-ledger.db", cfg.SQLitePath)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LEDGER_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")

	cfg := config.Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.Driver)
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsIncompleteConfigs(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
	}{
		{"postgres without url", config.Config{Driver: "postgres"}},
		{"sqlite without path", config.Config{Driver: "sqlite"}},
		{"unknown driver", config.Config{Driver: "mysql", SQLitePath: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := config.Config{Timezone: "America/New_York"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	cfg.Timezone = "Not/AZone"
	_, err = cfg.Location()
	assert.Error(t, err)

	cfg.Timezone = ""
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.NotNil(t, loc)
}
