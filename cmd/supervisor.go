package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/difftest/simv/sim"
	"github.com/difftest/simv/sim/diffstate"
	"github.com/difftest/simv/sim/difftest"
	_ "github.com/difftest/simv/sim/refproxy" // registers sim.NewRefProxyFunc
	"github.com/difftest/simv/sim/trace"
	"github.com/difftest/simv/sim/xdma"
)

// runResult is everything reported after a run ends.
type runResult struct {
	Outcome sim.Outcome
	Metrics *sim.Metrics
	EndInfo sim.CoreEndInfo
	Final   []diffstate.TrapEvent
	Trace   *trace.RunTrace
}

// checkOptionalImage warns about a configured image that does not exist.
func checkOptionalImage(kind, path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		logrus.Warnf("[warning] %s img not found: %v", kind, err)
		return
	}
	logrus.Infof("%s image: %s", kind, path)
}

// openRefProxy returns nil without error when the run should not compare.
func openRefProxy(cfg RunConfig) (sim.RefProxy, error) {
	if cfg.NoDiff {
		logrus.Info("disable diff-test")
		return nil, nil
	}
	if cfg.RefSO == "" {
		logrus.Warn("no reference model given, running without differential checking")
		return nil, nil
	}
	logrus.Infof("diff-test ref so: %s", cfg.RefSO)
	proxy, err := sim.NewRefProxy(cfg.RefSO, cfg.NumCores)
	if errors.Is(err, sim.ErrNoRefProxy) {
		logrus.Warnf("%v, running without differential checking", err)
		return nil, nil
	}
	return proxy, err
}

// runSupervisor opens the hardware stream, runs the ingestion workers and
// the stepping loop, and blocks until the run leaves RUNNING or ctx ends.
func runSupervisor(ctx context.Context, cfg RunConfig) (*runResult, error) {
	checkOptionalImage("flash", cfg.FlashImage)
	checkOptionalImage("sdcard", cfg.SDCardImage)

	src, err := xdma.OpenDevice(cfg.Image)
	if err != nil {
		return nil, err
	}
	proxy, err := openRefProxy(cfg)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("reference model: %w", err)
	}

	dev := xdma.New(src, xdma.Config{NumCores: cfg.NumCores, PoolDepth: cfg.PoolDepth})
	checker := difftest.New(dev.Exchange(), cfg.NumCores, proxy)
	rt := trace.NewRunTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)})
	simv := sim.NewSimv(checker, sim.Config{MaxInstrs: uint64(cfg.MaxInstrs), Trace: rt})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dev.Start(runCtx, simv.Abort)

	// The stepping loop stands in for the simulation engine calling NStep.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for simv.Status() == sim.StatusRunning && runCtx.Err() == nil {
			simv.NStep(runCtx, cfg.StepBatch)
		}
		simv.Finish()
	}()

	out, waitErr := simv.Wait(ctx)

	cancel()
	wg.Wait()
	if err := dev.Stop(); err != nil {
		logrus.Warnf("closing %s: %v", cfg.Image, err)
	}
	if proxy != nil {
		_ = proxy.Close()
	}
	logrus.Info("difftest releases the fpga device and exits")
	if waitErr != nil {
		return nil, waitErr
	}

	stats := dev.Stats()
	metrics := sim.NewMetrics(simv)
	metrics.RecordsRead = stats.RecordsRead
	metrics.SnapshotsAssembled = stats.SnapshotsAssembled
	return &runResult{
		Outcome: out,
		Metrics: metrics,
		EndInfo: simv.EndInfo(),
		Final:   simv.FinalEvents(),
		Trace:   rt,
	}, nil
}
