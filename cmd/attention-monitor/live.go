package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/attention-monitor/internal/eventlog"
	"github.com/sweeney/attention-monitor/internal/gpio"
	"github.com/sweeney/attention-monitor/internal/log"
	"github.com/sweeney/attention-monitor/internal/mqtt"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/status"
	"github.com/sweeney/attention-monitor/internal/store"
	"github.com/sweeney/attention-monitor/internal/web"
)

func runLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	httpAddr := fs.String("http", "", "HTTP status address (overrides config; empty to disable)")
	gpioPin := fs.Int("gpio-pin", -2, "BCM pin of the slide clicker (overrides config; -1 disables)")
	heartbeat := fs.Duration("heartbeat", 0, "Heartbeat interval (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if common.subject == "" {
		return errors.New("live: -subject is required")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *gpioPin != -2 {
		cfg.GPIO.Pin = *gpioPin
	}
	if *heartbeat > 0 {
		cfg.HeartbeatInterval = *heartbeat
	}
	if cfg.MQTT.Broker == "" {
		return errors.New("live: an MQTT broker is required (-broker or mqtt.broker)")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ordered log between the subscriber, the clicker and the session
	evlog := eventlog.New(cfg.ReorderTolerance)

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topics:   mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		Sink:     evlog,
		FPS:      cfg.Pipeline.FPS,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	cache := thresholdCache(cfg)
	var opts []session.Option
	if common.reuse {
		if opts, err = cachedThresholds(ctx, cache, common.subject); err != nil {
			return err
		}
	}

	id := uuid.NewString()
	sess := session.New(id, cfg.Session(), opts...)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(id, time.Now(), status.Config{
		Subject:       common.subject,
		WindowSeconds: cfg.Pipeline.WindowSeconds,
		HeartbeatMs:   cfg.HeartbeatInterval.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTPAddr,
		GPIOPin:       cfg.GPIO.Pin,
	})
	tracker.SetMQTTConnected(publisher.IsConnected())
	p := newPipeline(sess, publisher, tracker)
	p.update()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warn("live: failed to publish startup event", "error", err)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("live: http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("live: http status server listening", "addr", cfg.HTTPAddr)
	}

	// Slide clicker
	if cfg.GPIO.Pin >= 0 {
		button, err := gpio.NewRealButton(cfg.GPIO.Chip, cfg.GPIO.Pin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer button.Close()
		poll := time.NewTicker(gpio.PollInterval)
		defer poll.Stop()
		go gpio.Watch(ctx, button, poll.C, gpio.NewClicker(cfg.GPIO.Debounce), evlog.Clock(), evlog)
		log.Info("live: slide clicker enabled", "chip", cfg.GPIO.Chip, "pin", cfg.GPIO.Pin)
	}

	log.Info("live: started",
		"session", id,
		"subject", common.subject,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.HeartbeatInterval,
		"calibrated", sess.Phase() == session.PhaseTracking,
	)

	hb := time.NewTicker(cfg.HeartbeatInterval)
	defer hb.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	report, err := runLoop(p, evlog, publisher, hb.C, sigCh)
	if err != nil {
		return err
	}

	if !common.reuse {
		storeThresholds(ctx, cache, common.subject, report.Thresholds)
	}
	if cfg.PostgresURL != "" {
		pool, err := store.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo := store.NewReportRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		if err := repo.Save(ctx, common.subject, report); err != nil {
			return err
		}
		log.Info("live: report stored", "session", id)
	}
	return nil
}

// runLoop consumes the ordered log until a signal arrives, then drains it and
// finishes the session. A calibration failure ends the loop early.
// p must have a tracker.
func runLoop(p *pipeline, evlog *eventlog.Log, mqttStatus mqtt.ConnectionStatus, heartbeat <-chan time.Time, sig <-chan os.Signal) (session.Report, error) {
	publishSystem := func(event, reason string) {
		if p.pub == nil {
			return
		}
		if mqttStatus != nil {
			p.tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		snap := p.tracker.Snapshot()
		ev := mqtt.SystemEvent{
			Timestamp:  p.now(),
			Event:      event,
			Reason:     reason,
			Retained:   event != "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(snap, event, reason),
		}
		if err := p.pub.PublishSystem(ev); err != nil {
			log.Warn("live: system publish failed", "event", event, "error", err)
		}
	}

	for {
		select {
		case s := <-sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			log.Info("live: shutting down", "signal", signalName, "pending", evlog.Len())

			if err := p.apply(evlog.Flush()); err != nil {
				publishSystem("FAILED", err.Error())
				return session.Report{}, err
			}
			report, err := p.finish(0)
			if err != nil {
				publishSystem("FAILED", err.Error())
				return session.Report{}, err
			}
			publishSystem("SHUTDOWN", signalName)
			return report, nil

		case <-evlog.Notify():
			if err := p.apply(evlog.Ready()); err != nil {
				log.Error("live: session stopped", "error", err)
				publishSystem("FAILED", err.Error())
				return session.Report{}, err
			}

		case <-heartbeat:
			snap := p.tracker.Snapshot()
			log.Info("live: heartbeat",
				"phase", snap.Progress.Phase,
				"t", snap.Progress.SessionTime,
				"frames", snap.Progress.Frames.Processed,
				"blinks", snap.Progress.Blinks.Blinks,
			)
			publishSystem("HEARTBEAT", "")
		}
	}
}
