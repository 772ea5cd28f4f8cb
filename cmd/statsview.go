package cmd

import (
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/sirupsen/logrus"
)

const statsviewPath = "/debug/statsview"

// launchStatsview serves live runtime statistics (goroutines, heap, GC) at
// addr for the duration of a run. The returned func shuts the server down.
func launchStatsview(addr string) (stop func()) {
	viewer.SetConfiguration(viewer.WithAddr(addr))
	mgr := statsview.New()
	go func() {
		mgr.Start()
	}()
	logrus.Infof("stats server available at http://%s%s, pprof at http://%s/debug/pprof/", addr, statsviewPath, addr)
	return mgr.Stop
}
