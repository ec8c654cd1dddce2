// Package weblog_test tests the bounded log ring and subscriber fanout.
package weblog_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/book-expert/logger"

	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

func TestBufferEvictsOldest(t *testing.T) {
	t.Parallel()

	buffer := weblog.NewBuffer(3)

	for i := range 5 {
		buffer.Append(weblog.Entry{Message: fmt.Sprintf("m%d", i)})
	}

	history := buffer.History()
	require.Len(t, history, 3)
	require.Equal(t, "m2", history[0].Message)
	require.Equal(t, "m4", history[2].Message)
}

func TestBufferSubscribeReceivesNewEntries(t *testing.T) {
	t.Parallel()

	buffer := weblog.NewBuffer(10)

	sub, cancel := buffer.Subscribe()
	defer cancel()

	buffer.Append(weblog.Entry{Level: weblog.LevelInfo, Message: "streamed"})

	entry := <-sub
	require.Equal(t, "streamed", entry.Message)
}

func TestBufferSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	buffer := weblog.NewBuffer(10)

	// Never drained; appends beyond the channel buffer must not block.
	_, cancel := buffer.Subscribe()
	defer cancel()

	for i := range 200 {
		buffer.Append(weblog.Entry{Message: fmt.Sprintf("m%d", i)})
	}

	require.Len(t, buffer.History(), 10)
}

func TestLogMirrorsIntoBuffer(t *testing.T) {
	t.Parallel()

	fileLog, err := logger.New(t.TempDir(), "weblog-test.log")
	require.NoError(t, err)

	defer func() { _ = fileLog.Close() }()

	buffer := weblog.NewBuffer(10)
	log := weblog.New(fileLog, buffer, "engine")

	log.Info("hello %s", "world")
	log.Warn("careful")
	log.Error("broken")

	history := buffer.History()
	require.Len(t, history, 3)
	require.Equal(t, weblog.LevelInfo, history[0].Level)
	require.Equal(t, "hello world", history[0].Message)
	require.Equal(t, "engine", history[0].Module)
	require.Equal(t, weblog.LevelWarning, history[1].Level)
	require.Equal(t, weblog.LevelError, history[2].Level)
}

func TestNamedSharesSinks(t *testing.T) {
	t.Parallel()

	fileLog, err := logger.New(t.TempDir(), "weblog-test.log")
	require.NoError(t, err)

	defer func() { _ = fileLog.Close() }()

	buffer := weblog.NewBuffer(10)
	log := weblog.New(fileLog, buffer, "engine")

	log.Named("server").Info("routed")

	history := buffer.History()
	require.Len(t, history, 1)
	require.Equal(t, "server", history[0].Module)
}

func TestSetLevelFiltersRing(t *testing.T) {
	t.Parallel()

	fileLog, err := logger.New(t.TempDir(), "weblog-test.log")
	require.NoError(t, err)

	defer func() { _ = fileLog.Close() }()

	buffer := weblog.NewBuffer(10)
	log := weblog.New(fileLog, buffer, "engine")
	named := log.Named("server")

	log.SetLevel(weblog.LevelError)

	named.Info("suppressed")
	named.Warn("also suppressed")
	named.Error("kept")

	history := buffer.History()
	require.Len(t, history, 1)
	require.Equal(t, weblog.LevelError, history[0].Level)

	log.SetLevel("NOT_A_LEVEL")
	named.Error("still kept")
	require.Len(t, buffer.History(), 2)

	log.SetLevel(weblog.LevelInfo)
	named.Info("visible again")
	require.Len(t, buffer.History(), 3)
}
