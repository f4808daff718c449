package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifxctl/internal/lights"
)

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestPrintResults(t *testing.T) {
	oldOut, oldFormat := stdout, outputFormat
	t.Cleanup(func() { stdout, outputFormat = oldOut, oldFormat })

	results := []lights.ControlResult{
		{LightID: "d073d5000001"},
		{LightID: "d073d5000002", Err: errors.New("timed out")},
	}

	var buf bytes.Buffer
	stdout = &buf
	outputFormat = "json"
	require.NoError(t, printResults(results))
	assert.JSONEq(t, `[{"light":"d073d5000001"},{"light":"d073d5000002","error":"timed out"}]`, buf.String())

	buf.Reset()
	outputFormat = "detailed"
	require.NoError(t, printResults(results))
	assert.Equal(t, "  d073d5000001: ok\n  d073d5000002: failed: timed out\n", buf.String())

	stdout = brokenWriter{}
	for _, format := range []string{"json", "detailed"} {
		outputFormat = format
		assert.Error(t, printResults(results), format)
	}
}
