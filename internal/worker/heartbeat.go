package worker

import (
	"fmt"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/stone-age-io/svcctl/internal/utils"
	"go.uber.org/zap"
)

// startHeartbeat schedules the periodic liveness line
func (d *Daemon) startHeartbeat() (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(d.opts.HeartbeatInterval),
		gocron.NewTask(d.beat),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	s.Start()
	d.logger.Debug("Heartbeat scheduled", zap.Duration("interval", d.opts.HeartbeatInterval))
	return s, nil
}

// beat logs uptime, resident memory and the request count
func (d *Daemon) beat() {
	defer d.recoverFault("heartbeat")

	fields := []zap.Field{
		zap.String("instance", d.id.String()),
		zap.Duration("uptime", time.Since(d.started).Round(time.Second)),
		zap.Int64("requests", d.requests.Load()),
	}

	if rss, err := residentMB(); err != nil {
		d.logger.Debug("Failed to read process memory", zap.Error(err))
	} else {
		fields = append(fields, zap.Float64("rss_mb", rss))
	}

	d.logger.Info("Heartbeat", fields...)
}

// residentMB returns this process's resident set size in megabytes
func residentMB() (float64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("failed to open process: %w", err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to get memory info: %w", err)
	}
	return utils.MB(mem.RSS), nil
}
