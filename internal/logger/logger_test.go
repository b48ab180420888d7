package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew tests level parsing and construction
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{name: "empty defaults to info", level: "", wantErr: false},
		{name: "debug", level: "debug", wantErr: false},
		{name: "warn", level: "warn", wantErr: false},
		{name: "error", level: "error", wantErr: false},
		{name: "unknown level rejected", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(Options{Level: tt.level})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

// TestNop tests that the no-op logger accepts all calls
func TestNop(t *testing.T) {
	l := Nop()
	l.Debug("debug", "k", "v")
	l.Info("info", "k", 1)
	l.Warn("warn")
	l.Error("error", "err", assert.AnError)

	child := l.With("component", "test")
	require.NotNil(t, child)
	child.Info("child message")
}
