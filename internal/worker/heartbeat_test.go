package worker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHeartbeatLogsProcessStats(t *testing.T) {
	logger, logs := observedLogger()
	d := New(testOptions(), logger)
	d.started = time.Now().Add(-90 * time.Second)
	d.requests.Store(3)

	d.beat()

	entries := logs.FilterMessage("Heartbeat").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, int64(3), fields["requests"])
	assert.Equal(t, d.id.String(), fields["instance"])
	assert.Contains(t, fields, "uptime")
	assert.Contains(t, fields, "rss_mb")
}

func TestResidentMB(t *testing.T) {
	rss, err := residentMB()
	require.NoError(t, err)
	assert.Greater(t, rss, 0.0)
}

func TestHeartbeatSchedulerStopsOnShutdown(t *testing.T) {
	opts := testOptions()
	opts.HeartbeatInterval = time.Hour
	d := New(opts, zap.NewNop())
	require.NoError(t, d.Start(context.Background()))
	require.NotNil(t, d.heartbeat)

	assert.NoError(t, d.Shutdown(0))
}

func TestShutdownRefusesConnectionsWhileHeartbeatRuns(t *testing.T) {
	d := New(testOptions(), zap.NewNop(), WithExit(newExitRecorder().exit))
	require.NoError(t, d.Start(context.Background()))
	addr := d.Addr().String()

	// A heartbeat job that is still running when shutdown begins
	entered := make(chan struct{})
	release := make(chan struct{})
	s, err := gocron.NewScheduler()
	require.NoError(t, err)
	_, err = s.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			close(entered)
			<-release
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	require.NoError(t, err)
	s.Start()
	<-entered

	d.mu.Lock()
	d.heartbeat = s
	d.mu.Unlock()

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- d.Shutdown(0) }()

	time.Sleep(300 * time.Millisecond)
	conn, dialErr := net.DialTimeout("tcp", addr, time.Second)
	if dialErr == nil {
		conn.Close()
	}

	close(release)
	assert.NoError(t, <-shutdownDone)
	assert.Error(t, dialErr, "connection accepted after shutdown began")
}
