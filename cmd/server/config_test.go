package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vesting-engine/generic"
)

func TestConfig_Defaults(t *testing.T) {
	conf := newConfig()

	assert.Equal(t, 8080, conf.GetInt("port"))
	assert.Equal(t, defaultDBPath, conf.GetString("db"))
	assert.Equal(t, defaultPreset, conf.GetString("preset"))
	assert.False(t, conf.GetBool("sweeper.enabled"))
	assert.Equal(t, time.Hour, conf.GetDuration("sweeper.interval"))
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VESTING_PORT", "9090")
	t.Setenv("VESTING_SWEEPER_ENABLED", "true")

	conf := newConfig()

	assert.Equal(t, 9090, conf.GetInt("port"))
	assert.True(t, conf.GetBool("sweeper.enabled"))
}

func TestConfig_FileAndFlags(t *testing.T) {
	// GIVEN: A config file choosing the plain preset and port 7000
	// WHEN: The port flag is also set
	// THEN: The file wins over defaults, the flag wins over the file
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("preset: plain\nport: 7000\n"), 0o644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	require.NoError(t, flags.Parse([]string{"--port=7100"}))

	conf := newConfig()
	require.NoError(t, loadConfig(conf, path, flags))

	assert.Equal(t, "plain", conf.GetString("preset"))
	assert.Equal(t, 7100, conf.GetInt("port"))
}

func TestConfig_MissingExplicitFile(t *testing.T) {
	conf := newConfig()
	err := loadConfig(conf, filepath.Join(t.TempDir(), "nope.yaml"), pflag.NewFlagSet("test", pflag.ContinueOnError))
	assert.Error(t, err)
}

func TestSweepInterval(t *testing.T) {
	conf := newConfig()
	d, err := sweepInterval(conf)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	conf.Set("sweeper.interval", "0s")
	_, err = sweepInterval(conf)
	assert.Error(t, err)

	conf.Set("sweeper.interval", "-5m")
	_, err = sweepInterval(conf)
	assert.Error(t, err)
}

func TestLoadDeployment_PresetAndFile(t *testing.T) {
	conf := newConfig()
	conf.Set("preset", "compounding")
	conf.Set("accounts.deployer", "treasury")

	d, err := loadDeployment(conf)
	require.NoError(t, err)
	assert.Equal(t, "compounding", d.Name)
	assert.Equal(t, generic.Address("treasury"), d.Config.Deployer)

	path := filepath.Join(t.TempDir(), "deployment.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "custom",
		"reward_model": "none",
		"engine_account": "vesting",
		"deployer": "owner",
		"units": [{"unit": "Days"}]
	}`), 0o644))
	conf.Set("deployment", path)

	d, err = loadDeployment(conf)
	require.NoError(t, err)
	assert.Equal(t, "custom", d.Name)
	assert.Len(t, d.Config.Units, 1)
}

func TestLoadDeployment_UnknownPreset(t *testing.T) {
	conf := newConfig()
	conf.Set("preset", "nope")
	_, err := loadDeployment(conf)
	assert.Error(t, err)
}

func TestNewClock(t *testing.T) {
	conf := newConfig()
	c, err := newClock(conf)
	require.NoError(t, err)
	assert.IsType(t, generic.SystemClock{}, c)

	conf.Set("clock", "manual")
	conf.Set("clock_start", "2025-01-01T00:00:00Z")
	c, err = newClock(conf)
	require.NoError(t, err)
	require.IsType(t, &generic.ManualClock{}, c)
	assert.True(t, c.Now().Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	conf.Set("clock", "sundial")
	_, err = newClock(conf)
	assert.Error(t, err)
}
