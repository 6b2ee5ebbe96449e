package testutil

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/transport/wsbridge"
)

// StartBridge serves t over an httptest websocket bridge and returns a
// connected client. Both are closed when the test ends.
//
// Пример:
//
//	space, _ := memspace.LoadFixture("testdata/fixture.yaml")
//	client := testutil.StartBridge(t, space)
//	acc := mem.NewAccessor(client)
func StartBridge(tb testing.TB, t mem.Transport) *wsbridge.Client {
	tb.Helper()

	srv := httptest.NewServer(wsbridge.NewHandler(t))
	tb.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := wsbridge.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), wsbridge.WithRequestTimeout(time.Second))
	require.NoError(tb, err, "dialing test bridge")
	tb.Cleanup(func() { _ = client.Close() })

	return client
}
