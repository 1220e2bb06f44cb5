// Command attention-monitor detects blinks and fixations in facial-landmark
// streams and infers mind-wandering per presentation slide.
//
// Usage:
//
//	attention-monitor offline   -frames f.jsonl -controls c.csv -out dir
//	attention-monitor calibrate -frames f.jsonl -controls c.csv
//	attention-monitor live      -subject s -broker tcp://host:1883
//	attention-monitor report    -subject s -postgres url
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/config"
	"github.com/sweeney/attention-monitor/internal/control"
	"github.com/sweeney/attention-monitor/internal/eventlog"
	"github.com/sweeney/attention-monitor/internal/frames"
	"github.com/sweeney/attention-monitor/internal/geometry"
	"github.com/sweeney/attention-monitor/internal/log"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/store"
)

var errUsage = errors.New("usage: attention-monitor <offline|calibrate|live|report> [flags]")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "offline":
		return runOffline(ctx, args[1:], stdout)
	case "calibrate":
		return runCalibrate(ctx, args[1:], stdout)
	case "live":
		return runLive(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:], stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

// commonFlags are shared by every subcommand. Flags left empty fall back to
// the loaded configuration.
type commonFlags struct {
	config   string
	subject  string
	postgres string
	redis    string
	broker   string
	reuse    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "Config file (YAML, JSON or TOML)")
	fs.StringVar(&c.subject, "subject", "", "Subject identifier")
	fs.StringVar(&c.postgres, "postgres", "", "Postgres URL for reports (overrides config)")
	fs.StringVar(&c.redis, "redis", "", "Redis address for calibration thresholds (overrides config)")
	fs.StringVar(&c.broker, "broker", "", "MQTT broker address (overrides config)")
	fs.BoolVar(&c.reuse, "reuse-calibration", false, "Reuse the subject's cached thresholds instead of calibrating")
}

// load reads the configuration, applies flag overrides and initializes
// logging.
func (c *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(c.config)
	if err != nil {
		return config.Config{}, err
	}
	if c.postgres != "" {
		cfg.PostgresURL = c.postgres
	}
	if c.redis != "" {
		cfg.RedisAddr = c.redis
	}
	if c.broker != "" {
		cfg.MQTT.Broker = c.broker
	}
	log.Init(cfg.LogLevel)
	return cfg, nil
}

// thresholdCache opens the Redis threshold cache, or returns nil when Redis
// is not configured.
func thresholdCache(cfg config.Config) *store.ThresholdCache {
	client := store.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
	if client == nil {
		return nil
	}
	return store.NewThresholdCache(client, cfg.ThresholdTTL)
}

// cachedThresholds returns the session option for reusing a subject's
// thresholds. A cache miss is not an error: the session calibrates.
func cachedThresholds(ctx context.Context, cache *store.ThresholdCache, subject string) ([]session.Option, error) {
	if cache == nil {
		return nil, errors.New("-reuse-calibration needs a Redis address")
	}
	if subject == "" {
		return nil, errors.New("-reuse-calibration needs -subject")
	}
	th, ok, err := cache.Load(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	if !ok {
		log.Warn("no cached thresholds, calibrating", "subject", subject)
		return nil, nil
	}
	log.Info("reusing cached thresholds", "subject", subject, "ear", th.EAR, "velocity", th.Velocity)
	return []session.Option{session.WithThresholds(th)}, nil
}

// readControls reads the control log. The calibration plan is derived from
// its start/end markers.
func readControls(path string) ([]control.Event, calibration.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open controls: %w", err)
	}
	defer f.Close()

	events, err := control.ReadCSV(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read controls %s: %w", path, err)
	}
	plan, err := calibration.PlanFromEvents(events)
	if err != nil {
		return nil, nil, fmt.Errorf("controls %s: %w", path, err)
	}
	return events, plan, nil
}

// readFrames reads a JSON-lines frame file, skipping malformed records.
func readFrames(ctx context.Context, path string, fps float64) ([]frames.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frames: %w", err)
	}
	defer f.Close()

	skipped, invalid := 0, 0
	out, err := frames.Drain(ctx, frames.NewDecoder(f, fps), func(err error) {
		skipped++
		if errors.Is(err, geometry.ErrInvalidGeometry) {
			invalid++
		}
		log.Debug("skipping malformed frame", "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("read frames %s: %w", path, err)
	}
	if skipped > 0 {
		log.Warn("skipped malformed frames", "count", skipped, "invalid_geometry", invalid)
	}
	return out, nil
}

// replay runs a recorded session through the same ordered log the live
// path uses and finishes it at the last frame.
func replay(p *pipeline, events []control.Event, recorded []frames.Frame) (session.Report, error) {
	evlog := eventlog.New(0)
	for _, ev := range events {
		evlog.PushControl(ev)
	}
	for _, f := range recorded {
		evlog.PushFrame(f)
	}
	if err := p.apply(evlog.Flush()); err != nil {
		return session.Report{}, err
	}
	return p.finish(0)
}
