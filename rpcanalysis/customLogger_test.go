package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerFormat(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	h := NewHandler(&out, nil)
	r := slog.NewRecord(time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC), slog.LevelInfo, "Number of workers: 4", 0)
	r.AddAttrs(slog.String("module", "config"))
	require.NoError(t, h.Handle(context.Background(), r))
	assert.Equal(t, "[2024/05/17 09:30:00] [config] Number of workers: 4\n", out.String())
}

func TestLoggerSplitsStreams(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	l := newLogger(&stdout, &stderr)
	l.Info("HV point 3 done", "scan")
	l.Error("scan 12 HV point 4: input file missing")

	assert.True(t, strings.HasSuffix(stdout.String(), "[scan] HV point 3 done\n"), stdout.String())
	assert.Contains(t, stderr.String(), `"level":"ERROR"`)
	assert.Contains(t, stderr.String(), `"msg":"scan 12 HV point 4: input file missing"`)
	assert.NotContains(t, stdout.String(), "input file missing")
}
