package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/128technology/pca-importer/client"
)

const validConfig = `
[application]
log-level=debug
max-concurrent-objects=4

[auth]
url=https://tenant.analytics.accedian.io
username=ops@example.com
password=hunter2

[metrics]
granularity=PT5M
interval=2025-07-21T00:00:00Z/2025-07-21T06:00:00Z

[monitored-objects]
27-F6694D56-D2D4-17E7-EC3C-5E50BA16E908 = twamp-sf
Gi0/0/1 = cisco-telemetry-xe-interface
`

func clearEnv(t *testing.T) {
	t.Setenv("PCA_URL", "")
	t.Setenv("PCA_USERNAME", "")
	t.Setenv("PCA_PASSWORD", "")
}

func TestLoadBytes(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadBytes([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Application.LogLevel)
	assert.Equal(t, 4, cfg.Application.MaxConcurrentObjects)
	assert.Equal(t, OutputJSON, cfg.Application.Output)

	assert.Equal(t, "https://tenant.analytics.accedian.io", cfg.Auth.URL)
	assert.Equal(t, client.Credential{Username: "ops@example.com", Password: "hunter2"}, cfg.Auth.Credential())
	assert.Equal(t, 30*time.Second, cfg.Auth.RequestTimeout())
	assert.False(t, cfg.Auth.InsecureSkipVerify)

	assert.Equal(t, "PT5M", cfg.Metrics.Granularity)
	assert.Equal(t, "2025-07-21T00:00:00Z/2025-07-21T06:00:00Z", cfg.Metrics.Interval)
	assert.True(t, cfg.Metrics.ScopeToObject)

	assert.Equal(t, []client.MonitoredObject{
		{ID: "27-F6694D56-D2D4-17E7-EC3C-5E50BA16E908", ObjectType: "twamp-sf"},
		{ID: "Gi0/0/1", ObjectType: "cisco-telemetry-xe-interface"},
	}, cfg.Objects)
}

func TestLoadObjectIDsWithColons(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadBytes([]byte(`
[auth]
url=https://tenant.analytics.accedian.io
username=ops@example.com

[metrics]
granularity=PT5M
interval=2025-07-21T00:00:00Z/2025-07-21T06:00:00Z

[monitored-objects]
# session between two reflectors
router1:Gi0/0/1 = cisco-telemetry-xe-interface
; disabled
27-F6694D56=twamp-sf
`))
	require.NoError(t, err)
	assert.Equal(t, []client.MonitoredObject{
		{ID: "router1:Gi0/0/1", ObjectType: "cisco-telemetry-xe-interface"},
		{ID: "27-F6694D56", ObjectType: "twamp-sf"},
	}, cfg.Objects)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PCA_URL", "https://other.analytics.accedian.io")
	t.Setenv("PCA_USERNAME", "")
	t.Setenv("PCA_PASSWORD", "from-env")

	cfg, err := LoadBytes([]byte(validConfig))
	require.NoError(t, err)
	assert.Equal(t, "https://other.analytics.accedian.io", cfg.Auth.URL)
	assert.Equal(t, "ops@example.com", cfg.Auth.Username)
	assert.Equal(t, "from-env", cfg.Auth.Password)
}

func TestLoadObjectsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	objects := `
- id: 27-F6694D56
  objectType: twamp-sf
- id: Gi0/0/2
  objectType: cisco-telemetry-xe-interface
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "objects.yaml"), []byte(objects), 0o600))

	ini := `
[auth]
url=https://tenant.analytics.accedian.io
username=ops@example.com

[metrics]
granularity=PT1H
interval=2025-07-18T09:54:51.483Z/2025-07-18T14:54:51.483Z
aggregation=max
scope-to-object=false
monitored-objects-file=objects.yaml
`
	configPath := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(configPath, []byte(ini), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "max", cfg.Metrics.Aggregation)
	assert.False(t, cfg.Metrics.ScopeToObject)
	assert.Empty(t, cfg.Auth.Password)
	assert.Equal(t, []client.MonitoredObject{
		{ID: "27-F6694D56", ObjectType: "twamp-sf"},
		{ID: "Gi0/0/2", ObjectType: "cisco-telemetry-xe-interface"},
	}, cfg.Objects)
}

func TestLoadObjectsFileWrapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitored_objects:\n  - id: a\n    objectType: twamp-sf\n"), 0o600))

	objects, err := LoadObjectsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []client.MonitoredObject{{ID: "a", ObjectType: "twamp-sf"}}, objects)
}

func TestLoadObjectsFileMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"scalar":   "twamp-sf",
		"bad list": "- [a, twamp-sf]",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "objects.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			_, err := LoadObjectsFile(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedConfig))
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	base := `
[auth]
url=https://tenant.analytics.accedian.io
username=ops@example.com

[metrics]
granularity=PT5M
interval=2025-07-21T00:00:00Z/2025-07-21T06:00:00Z
`

	tests := []struct {
		name    string
		config  string
		message string
	}{
		{
			name:    "no objects",
			config:  base,
			message: "no monitored objects configured",
		},
		{
			name:    "object without type",
			config:  base + "[monitored-objects]\nobj-1 =\n",
			message: "Objects[0].ObjectType is required",
		},
		{
			name:    "missing type",
			config:  base + "[monitored-objects]\nobj-1\n",
			message: `"obj-1" has no objectType`,
		},
		{
			name:    "missing url",
			config:  "[auth]\nusername=a\n[metrics]\ngranularity=PT5M\ninterval=2025-07-21T00:00:00Z/2025-07-21T06:00:00Z\n[monitored-objects]\na=twamp-sf\n",
			message: "Auth.URL is required",
		},
		{
			name:    "bad granularity",
			config:  "[auth]\nurl=https://x.io\nusername=a\n[metrics]\ngranularity=5m\ninterval=2025-07-21T00:00:00Z/2025-07-21T06:00:00Z\n[monitored-objects]\na=twamp-sf\n",
			message: "not an ISO-8601 duration",
		},
		{
			name:    "reversed interval",
			config:  "[auth]\nurl=https://x.io\nusername=a\n[metrics]\ngranularity=PT5M\ninterval=2025-07-21T06:00:00Z/2025-07-21T00:00:00Z\n[monitored-objects]\na=twamp-sf\n",
			message: "not an ISO-8601 start/end interval",
		},
		{
			name:    "bad output",
			config:  "[application]\noutput=csv\n" + base + "[monitored-objects]\na=twamp-sf\n",
			message: "Application.Output",
		},
		{
			name:    "bad aggregation",
			config:  base + "aggregation=median\n[monitored-objects]\na=twamp-sf\n",
			message: "Metrics.Aggregation",
		},
		{
			name:    "missing objects file",
			config:  base + "monitored-objects-file=/nonexistent/objects.yaml\n",
			message: "reading monitored objects file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			_, err := LoadBytes([]byte(tt.config))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedConfig))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedConfig))
}

func TestIsDuration(t *testing.T) {
	for _, valid := range []string{"PT5M", "PT1H", "P1D", "P1DT12H", "PT0.5S", "P2W"} {
		assert.True(t, IsDuration(valid), valid)
	}
	for _, invalid := range []string{"", "P", "PT", "5M", "PT5X", "P1DT"} {
		assert.False(t, IsDuration(invalid), invalid)
	}
}

func TestIsInterval(t *testing.T) {
	assert.True(t, IsInterval("2025-07-18T09:54:51.483Z/2025-07-18T14:54:51.483Z"))
	assert.False(t, IsInterval("2025-07-18T09:54:51Z"))
	assert.False(t, IsInterval("2025-07-18/2025-07-19"))
	assert.False(t, IsInterval("2025-07-18T14:54:51Z/2025-07-18T09:54:51Z"))
}

func TestNewValidatorCustomTags(t *testing.T) {
	var v *validator.Validate
	require.NotPanics(t, func() { v = newValidator() })

	assert.NoError(t, v.Var("PT5M", "iso8601duration"))
	assert.Error(t, v.Var("5M", "iso8601duration"))
	assert.NoError(t, v.Var("2025-07-18T09:54:51Z/2025-07-18T14:54:51Z", "iso8601interval"))
	assert.Error(t, v.Var("2025-07-18T09:54:51Z", "iso8601interval"))
	assert.NoError(t, v.Var("avg", "aggregation"))
	assert.Error(t, v.Var("median", "aggregation"))
}
