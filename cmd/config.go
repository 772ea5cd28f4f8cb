package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/difftest/simv/sim/diffstate"
	"github.com/difftest/simv/sim/trace"
)

// HexUint64 is a uint64 written in hexadecimal, with or without a 0x prefix.
// It works both as a pflag.Value and as a YAML scalar.
type HexUint64 uint64

func parseHex(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("empty hexadecimal value")
	}
	return strconv.ParseUint(s, 16, 64)
}

func (h *HexUint64) String() string { return fmt.Sprintf("%#x", uint64(*h)) }

// Set parses s as hexadecimal.
func (h *HexUint64) Set(s string) error {
	v, err := parseHex(s)
	if err != nil {
		return fmt.Errorf("invalid hexadecimal %q: %w", s, err)
	}
	*h = HexUint64(v)
	return nil
}

func (h *HexUint64) Type() string { return "hex" }

// UnmarshalYAML reads the scalar as hexadecimal text, so `0x100` and `100` both mean 256.
func (h *HexUint64) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: max_instrs must be a scalar", node.Line)
	}
	if err := h.Set(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// MarshalYAML writes the value as 0x-prefixed text.
func (h HexUint64) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// RunConfig holds everything `simv run` needs. Values come from the built-in
// defaults, then the optional YAML file, then explicitly set flags.
// All fields must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Image       string    `yaml:"image"`       // workload image / DMA device path
	RefSO       string    `yaml:"diff"`        // reference model path
	NoDiff      bool      `yaml:"no_diff"`     // disable reference comparison
	MaxInstrs   HexUint64 `yaml:"max_instrs"`  // per-core instruction ceiling, 0 = no limit
	NumCores    int       `yaml:"cores"`       // cores per snapshot
	PoolDepth   int       `yaml:"pool_depth"`  // DMA chunk pool depth
	StepBatch   int       `yaml:"step_batch"`  // steps per NStep call
	FlashImage  string    `yaml:"flash"`       // optional flash image
	SDCardImage string    `yaml:"sdcard"`      // optional SD card image
	TraceLevel  string    `yaml:"trace_level"` // "none" or "events"
	Report      string    `yaml:"report"`      // YAML report output path
	LogLevel    string    `yaml:"log"`         // logrus level
	StatsView   string    `yaml:"statsview"`   // live runtime stats address, empty = off
}

// bindFlags registers the run flags on fs, storing into c. Flag defaults are
// the built-in defaults.
func bindFlags(fs *pflag.FlagSet, c *RunConfig) {
	fs.StringVarP(&c.Image, "image", "i", "/dev/zero", "Workload image or DMA character device to read hardware state from")
	fs.StringVar(&c.RefSO, "diff", "", "Reference model path (golden record stream)")
	fs.BoolVar(&c.NoDiff, "no-diff", false, "Disable differential testing against the reference model")
	fs.Var(&c.MaxInstrs, "max-instrs", "Per-core instruction ceiling in hex (0 = no limit)")
	fs.IntVar(&c.NumCores, "cores", 1, "Number of cores per snapshot")
	fs.IntVar(&c.PoolDepth, "pool-depth", 0, "DMA chunk pool depth (0 = cores+1)")
	fs.IntVar(&c.StepBatch, "step-batch", 1, "Steps advanced per engine call")
	fs.StringVar(&c.FlashImage, "flash", "", "Flash image (optional)")
	fs.StringVar(&c.SDCardImage, "sdcard", "", "SD card image (optional)")
	fs.StringVar(&c.TraceLevel, "trace-level", "none", "Run trace level (none, events)")
	fs.StringVar(&c.Report, "report", "", "Write a YAML run report to this path")
	fs.StringVar(&c.LogLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	fs.StringVar(&c.StatsView, "statsview", "", "Serve live runtime statistics at this address, e.g. localhost:12600")
}

// resolveRunConfig layers the YAML file at path (if any) over the defaults, then
// every flag the user set on changed.
func resolveRunConfig(path string, changed *pflag.FlagSet) (RunConfig, error) {
	var cfg RunConfig
	layer := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	bindFlags(layer, &cfg)

	if path != "" {
		if err := loadRunConfig(path, &cfg); err != nil {
			return cfg, err
		}
	}
	var setErr error
	changed.Visit(func(f *pflag.Flag) {
		if layer.Lookup(f.Name) == nil || setErr != nil {
			return
		}
		if err := layer.Set(f.Name, f.Value.String()); err != nil {
			setErr = fmt.Errorf("flag --%s: %w", f.Name, err)
		}
	})
	if setErr != nil {
		return cfg, setErr
	}
	if cfg.PoolDepth == 0 {
		cfg.PoolDepth = cfg.NumCores + 1
	}
	return cfg, cfg.Validate()
}

// loadRunConfig decodes the YAML file at path over cfg.
// Uses strict field checking: typos must cause errors.
func loadRunConfig(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read run config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse run config %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges that would otherwise deadlock or panic later.
func (c RunConfig) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("workload image not provided")
	}
	if c.NumCores < 1 || c.NumCores > diffstate.MaxCores {
		return fmt.Errorf("cores must be in [1, %d], got %d", diffstate.MaxCores, c.NumCores)
	}
	if c.PoolDepth < c.NumCores+1 {
		return fmt.Errorf("pool depth must be at least cores+1 (%d), got %d", c.NumCores+1, c.PoolDepth)
	}
	if c.StepBatch < 1 {
		return fmt.Errorf("step batch must be >= 1, got %d", c.StepBatch)
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		return fmt.Errorf("unknown trace level %q", c.TraceLevel)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}
