// Package objectstore_test tests the NATS object store against an embedded
// server.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/objectstore"
)

// StartTestServer starts an in-memory NATS server with JetStream enabled.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newTestStore(t *testing.T, bucket string) (*objectstore.NatsObjectStore, func()) {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket)
	require.NoError(t, err)

	cleanup := func() {
		natsConnection.Close()
		natsServer.Shutdown()
	}

	return store, cleanup
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()

	store, cleanup := newTestStore(t, "audio-artifacts")
	defer cleanup()

	ctx := context.Background()
	key := "job-42.wav"
	payload := []byte("RIFF....WAVEfmt ")

	require.NoError(t, store.Upload(ctx, key, payload))

	downloaded, err := store.Download(ctx, key)
	require.NoError(t, err)
	require.Equal(t, payload, downloaded)
}

func TestDownloadMissingKey(t *testing.T) {
	t.Parallel()

	store, cleanup := newTestStore(t, "audio-artifacts")
	defer cleanup()

	_, err := store.Download(context.Background(), "never-uploaded")
	require.Error(t, err)
}

func TestDeleteRemovesObject(t *testing.T) {
	t.Parallel()

	store, cleanup := newTestStore(t, "audio-artifacts")
	defer cleanup()

	ctx := context.Background()
	key := "job-to-delete.wav"

	require.NoError(t, store.Upload(ctx, key, []byte("audio")))
	require.NoError(t, store.Delete(ctx, key))

	_, err := store.Download(ctx, key)
	require.Error(t, err)
}
