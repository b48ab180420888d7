package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

func TestRegistryCmd_Use(t *testing.T) {
	assert.Equal(t, "registry", registryCmd.Use)
	assert.Equal(t, "list", registryListCmd.Use)
	assert.Equal(t, "clear-failed", registryClearFailedCmd.Use)
}

func TestRegistryListCmd_PrintsEntries(t *testing.T) {
	mock := &mockEngine{
		registryEntries: []domain.RegistryEntry{
			{SourcePath: "/watch/a.md", Status: domain.RegistryIndexed},
			{SourcePath: "/watch/b.md", Status: domain.RegistryFailed, RetryCount: 3, ErrorMessage: "embedding provider unavailable"},
		},
	}
	cleanup := setupTestEngine(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"registry", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/watch/a.md")
	assert.Contains(t, buf.String(), "retry 3/3")
	assert.Contains(t, buf.String(), "embedding provider unavailable")
	assert.Contains(t, buf.String(), "Total: 2 entries")
	assert.Nil(t, mock.lastFilter)
}

func TestRegistryListCmd_Empty(t *testing.T) {
	mock := &mockEngine{}
	cleanup := setupTestEngine(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"registry", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Registry is empty.")
}

func TestRegistryListCmd_StatusFilter(t *testing.T) {
	mock := &mockEngine{
		registryEntries: []domain.RegistryEntry{
			{SourcePath: "/watch/a.md", Status: domain.RegistryIndexed},
			{SourcePath: "/watch/b.md", Status: domain.RegistryFailed},
		},
	}
	cleanup := setupTestEngine(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"registry", "list", "--status", "failed"})
	defer func() {
		rootCmd.SetArgs(nil)
		registryStatus = ""
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	require.NotNil(t, mock.lastFilter)
	assert.Equal(t, domain.RegistryFailed, *mock.lastFilter)
	assert.Contains(t, buf.String(), "/watch/b.md")
	assert.NotContains(t, buf.String(), "/watch/a.md")
}

func TestRegistryListCmd_UnknownStatus(t *testing.T) {
	mock := &mockEngine{}
	cleanup := setupTestEngine(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"registry", "list", "--status", "done"})
	defer func() {
		rootCmd.SetArgs(nil)
		registryStatus = ""
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestRegistryListCmd_JSONOutput(t *testing.T) {
	mock := &mockEngine{
		registryEntries: []domain.RegistryEntry{
			{SourcePath: "/watch/a.md", ContentHash: "abc123", Status: domain.RegistryIndexed},
		},
	}
	cleanup := setupTestEngine(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"registry", "list", "--json"})
	defer func() {
		rootCmd.SetArgs(nil)
		registryJSON = false
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"SourcePath": "/watch/a.md"`)
	assert.Contains(t, buf.String(), `"ContentHash": "abc123"`)
}

func TestRegistryClearFailedCmd_ResetsEntries(t *testing.T) {
	mock := &mockEngine{resetCount: 5}
	cleanup := setupTestEngine(mock)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"registry", "clear-failed"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Reset 5 failed entries to pending.")
}
