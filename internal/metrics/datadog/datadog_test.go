package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvimport/internal/metrics"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := NewBackend(Config{})
	require.Error(t, err)
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, labelsToTags(nil))
	assert.Equal(t, []string{"kind:inserted", "table:sales"},
		labelsToTags(metrics.Labels{"table": "sales", "kind": "inserted"}))
}

func TestBackendSendsOverUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String(), Namespace: "etl.", GlobalTags: []string{"env:test"}, DisableTelemetry: true})
	require.NoError(t, err)

	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"table": "sales", "kind": "inserted"})
	require.NoError(t, b.Flush())

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	got := string(buf[:n])
	assert.True(t, strings.HasPrefix(got, "etl."+metrics.RowsTotal+":3|c"), got)
	assert.Contains(t, got, "table:sales")
	assert.Contains(t, got, "env:test")
}
