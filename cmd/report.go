package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/difftest/simv/sim/trace"
)

// CoreReport is the end-of-run view of one core.
type CoreReport struct {
	Core     int     `yaml:"core"`
	Trapped  bool    `yaml:"instr_limit_reached"`
	PC       string  `yaml:"pc"`
	InstrCnt uint64  `yaml:"instr_cnt"`
	CycleCnt uint64  `yaml:"cycle_cnt"`
	CPI      float64 `yaml:"cpi"`
}

// Report is the YAML document written by --report.
type Report struct {
	Status             string              `yaml:"status"`
	Cause              string              `yaml:"cause"`
	TrapCode           int                 `yaml:"trap_code"`
	Error              string              `yaml:"error,omitempty"`
	ExitCode           int                 `yaml:"exit_code"`
	Steps              uint64              `yaml:"steps"`
	RecordsRead        uint64              `yaml:"records_read"`
	SnapshotsAssembled uint64              `yaml:"snapshots_assembled"`
	Cores              []CoreReport        `yaml:"cores"`
	Trace              *trace.TraceSummary `yaml:"trace,omitempty"`
}

func buildReport(res *runResult) Report {
	r := Report{
		Status:             res.Outcome.Status.String(),
		Cause:              res.Outcome.Cause,
		TrapCode:           res.Outcome.TrapCode,
		ExitCode:           res.Outcome.ExitCode(),
		Steps:              res.Outcome.Steps,
		RecordsRead:        res.Metrics.RecordsRead,
		SnapshotsAssembled: res.Metrics.SnapshotsAssembled,
		Cores:              make([]CoreReport, len(res.Final)),
	}
	if res.Outcome.Err != nil {
		r.Error = res.Outcome.Err.Error()
	}
	for core, ev := range res.Final {
		cr := CoreReport{
			Core:     core,
			PC:       fmt.Sprintf("%#x", ev.PC),
			InstrCnt: ev.InstrCnt,
			CycleCnt: ev.CycleCnt,
			CPI:      ev.CPI(),
		}
		if core < len(res.EndInfo.Trapped) && res.EndInfo.Trapped[core] {
			cr.Trapped = true
			cr.CPI = res.EndInfo.CPI[core]
		}
		r.Cores[core] = cr
	}
	if res.Trace != nil {
		r.Trace = trace.Summarize(res.Trace)
	}
	return r
}

func writeReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
