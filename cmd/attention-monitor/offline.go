package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/attention-monitor/internal/config"
	"github.com/sweeney/attention-monitor/internal/export"
	"github.com/sweeney/attention-monitor/internal/log"
	"github.com/sweeney/attention-monitor/internal/mqtt"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/store"
)

func runOffline(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("offline", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	framesPath := fs.String("frames", "", "Frame file (JSON lines)")
	controlsPath := fs.String("controls", "", "Control log (CSV)")
	outDir := fs.String("out", "", "Output directory for CSV tables")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *framesPath == "" || *controlsPath == "" || *outDir == "" {
		return errors.New("offline: -frames, -controls and -out are required")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}

	var pub mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topics:   mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		pub = rp
	}

	var reports reportStore
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
		reports = repo
	}

	report, err := offline(ctx, offlineInput{
		framesPath:   *framesPath,
		controlsPath: *controlsPath,
		outDir:       *outDir,
		subject:      common.subject,
		reuse:        common.reuse,
	}, cfg, offlineDeps{
		publisher: pub,
		reports:   reports,
		cache:     thresholdCache(cfg),
	})
	if err != nil {
		return err
	}

	printSummary(stdout, report)
	return nil
}

// reportStore persists finished sessions. *store.ReportRepository satisfies it.
type reportStore interface {
	Save(ctx context.Context, subject string, r session.Report) error
}

type offlineInput struct {
	framesPath   string
	controlsPath string
	outDir       string
	subject      string
	reuse        bool
}

type offlineDeps struct {
	publisher mqtt.Publisher        // optional
	reports   reportStore           // optional
	cache     *store.ThresholdCache // optional
}

// offline processes one recorded session and writes its tables.
func offline(ctx context.Context, in offlineInput, cfg config.Config, deps offlineDeps) (session.Report, error) {
	events, plan, err := readControls(in.controlsPath)
	if err != nil {
		return session.Report{}, err
	}
	recorded, err := readFrames(ctx, in.framesPath, cfg.Pipeline.FPS)
	if err != nil {
		return session.Report{}, err
	}

	opts := []session.Option{session.WithPlan(plan)}
	if in.reuse {
		cached, err := cachedThresholds(ctx, deps.cache, in.subject)
		if err != nil {
			return session.Report{}, err
		}
		opts = append(opts, cached...)
	}

	id := uuid.NewString()
	log.Info("offline: processing",
		"session", id,
		"subject", in.subject,
		"frames", len(recorded),
		"controls", len(events),
		"calibration_intervals", len(plan),
	)

	sess := session.New(id, cfg.Session(), opts...)
	report, err := replay(newPipeline(sess, deps.publisher, nil), events, recorded)
	if err != nil {
		return session.Report{}, fmt.Errorf("session %s: %w", id, err)
	}

	if err := export.WriteReport(in.outDir, report); err != nil {
		return report, err
	}
	log.Info("offline: tables written", "dir", in.outDir)

	if deps.reports != nil {
		if err := deps.reports.Save(ctx, in.subject, report); err != nil {
			return report, err
		}
		log.Info("offline: report stored", "session", id)
	}
	if !in.reuse {
		storeThresholds(ctx, deps.cache, in.subject, report.Thresholds)
	}
	if deps.publisher != nil {
		event := mqtt.SystemEvent{Timestamp: time.Now(), Event: "SESSION_COMPLETE", Reason: id}
		if err := deps.publisher.PublishSystem(event); err != nil {
			log.Warn("offline: publish failed", "error", err)
		}
	}
	return report, nil
}

func printSummary(w io.Writer, r session.Report) {
	fmt.Fprintf(w, "session %s: %.3f-%.3f, ear threshold %.4f, velocity threshold %.4f\n",
		r.SessionID, r.Start, r.End, r.Thresholds.EAR, r.Thresholds.Velocity)
	for _, rec := range r.Records {
		verdict := "attentive"
		if rec.MindWandering {
			verdict = "mind wandering"
		}
		fmt.Fprintf(w, "slide %d %s: %s (blinks %d, erratic %d/%d)\n",
			rec.Slide, rec.TimePeriod(), verdict,
			rec.Metrics.BlinkCount, rec.Metrics.ErraticCount, rec.Metrics.FixationCount)
	}
	for _, m := range r.CrossCheck {
		if m.Matched {
			fmt.Fprintf(w, "self-report at %.3f matches slide %d\n", m.ReportTime, m.Slide)
		} else {
			fmt.Fprintf(w, "self-report at %.3f matches no flagged slide\n", m.ReportTime)
		}
	}
}
