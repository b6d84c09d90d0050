package cli

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDriverReportsMissingServerOnStderr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	var stderr bytes.Buffer
	a := &App{ServerAddr: addr, Stderr: &stderr}

	_, err = a.openDriver(context.Background())
	require.Error(t, err)

	assert.Contains(t, stderr.String(), "server is not running at "+addr)
	assert.Contains(t, stderr.String(), "bond serve")
}
