package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 24, cfg.SLA.ResponseHours)
	assert.Equal(t, 72, cfg.SLA.ResolutionHours)
	assert.Equal(t, "INV", cfg.Numbering.Invoice)
	assert.Equal(t, []string{"*"}, cfg.RolePermissions()["admin"])
}

func TestFromYAMLKeepsDefaultsForOmittedSections(t *testing.T) {
	cfg, err := FromYAML([]byte("sla:\n  response_hours: 4\n  resolution_hours: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.SLA.ResponseHours)
	assert.Equal(t, 3, cfg.Automation.AutoCloseResolvedDays)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"inverted sla":        "sla:\n  response_hours: 10\n  resolution_hours: 5\n",
		"webhook without url": "delivery:\n  mode: webhook\n",
		"unknown mode":        "delivery:\n  mode: carrier-pigeon\n",
		"empty permission":    "rbac:\n  roles:\n    user:\n      permissions: [\"\"]\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "TKT", cfg.Numbering.Ticket)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "crmline.yml"), []byte("numbering:\n  ticket: SUP\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "SUP", cfg.Numbering.Ticket)
}

func TestLogErrorWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "debug"}, &buf)
	LogError(logger, "automation", "SweepSLA", "ticket t1", map[string]string{"id": "t1"}, errors.New("boom"))
	out := buf.String()
	assert.Contains(t, out, `"module":"automation"`)
	assert.Contains(t, out, `"msg":"boom"`)
}
