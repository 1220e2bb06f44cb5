package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/config"
	"github.com/sweeney/attention-monitor/internal/export"
	"github.com/sweeney/attention-monitor/internal/log"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/store"
)

func runCalibrate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	framesPath := fs.String("frames", "", "Frame file (JSON lines)")
	controlsPath := fs.String("controls", "", "Control log with calibration markers (CSV)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *framesPath == "" || *controlsPath == "" {
		return errors.New("calibrate: -frames and -controls are required")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}

	th, err := calibrate(ctx, *framesPath, *controlsPath, cfg)
	if err != nil {
		return err
	}
	if err := export.WriteThresholds(stdout, th); err != nil {
		return err
	}

	if cache := thresholdCache(cfg); cache != nil {
		if common.subject == "" {
			return errors.New("calibrate: storing thresholds needs -subject")
		}
		if err := cache.Save(ctx, common.subject, th); err != nil {
			return err
		}
		log.Info("calibrate: thresholds stored", "subject", common.subject, "ttl", cfg.ThresholdTTL)
	}
	return nil
}

// calibrate computes thresholds from the calibration intervals of a recorded
// session.
func calibrate(ctx context.Context, framesPath, controlsPath string, cfg config.Config) (calibration.Thresholds, error) {
	events, plan, err := readControls(controlsPath)
	if err != nil {
		return calibration.Thresholds{}, err
	}
	if len(plan) == 0 {
		return calibration.Thresholds{}, fmt.Errorf("%w: no calibration intervals in %s", calibration.ErrInsufficientCalibrationData, controlsPath)
	}
	recorded, err := readFrames(ctx, framesPath, cfg.Pipeline.FPS)
	if err != nil {
		return calibration.Thresholds{}, err
	}

	sess := session.New(uuid.NewString(), cfg.Session(), session.WithPlan(plan))
	if _, err := replay(newPipeline(sess, nil, nil), events, recorded); err != nil {
		return calibration.Thresholds{}, err
	}
	return sess.Thresholds(), nil
}

// storeThresholds is used by the live command once a session calibrates.
func storeThresholds(ctx context.Context, cache *store.ThresholdCache, subject string, th calibration.Thresholds) {
	if cache == nil || subject == "" {
		return
	}
	if err := cache.Save(ctx, subject, th); err != nil {
		log.Warn("caching thresholds failed", "subject", subject, "error", err)
	}
}
