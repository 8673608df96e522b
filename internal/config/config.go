// Package config loads the dispatch core's runtime configuration from a
// YAML file with strict field decoding, so a typo'd key is a load-time
// error rather than a silently ignored default.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Board groups the physical-accelerator parameters: slot count, worker
// pool sizing headroom (defaulting to 1, i.e. a pool of num_slots+1
// workers), the power-array width the Oracle wire protocol for this board
// class expects, and the discrete set of compute-unit widths a newly
// arrived Task may be assigned.
type Board struct {
	NumSlots     int `yaml:"num_slots"`
	PoolHeadroom int `yaml:"pool_headroom"`
	PowerWidth   int `yaml:"power_width"`
	// CUChoices is the discrete set of compute-unit counts the Arrival
	// Generator samples from when constructing a Task, mirroring the
	// board-specific tmp_cu tables ({1,2,4,8} on ZCU, {1,2,4} on PYNQ) the
	// original assignment hardcodes per board class. Load leaves an empty
	// list empty; the Arrival Generator then makes every Task single-CU,
	// matching the plan file's own silence on compute-unit width.
	CUChoices []int `yaml:"cu_choices"`
}

// Oracle groups the Unix-domain socket paths for the training and
// prediction channels.
type Oracle struct {
	TrainingSocketPath   string `yaml:"training_socket_path"`
	PredictionSocketPath string `yaml:"prediction_socket_path"`
}

// Monitor groups the Monitor Thread's tick cadence and training schedule.
type Monitor struct {
	TickPeriodMS            int64   `yaml:"tick_period_ms"`
	MeasurementsPerTraining int     `yaml:"measurements_per_training"`
	ObservationsPerWindow   float64 `yaml:"observations_per_window"`
}

// Policy selects the scheduling strategy and how many candidates the
// model-assisted policies scan per decision.
type Policy struct {
	Name           string `yaml:"name"`
	CandidateDepth int    `yaml:"candidate_depth"`
}

// Workload points at the three parallel binary plan files.
type Workload struct {
	InterArrivalPath  string `yaml:"inter_arrival_path"`
	KernelIDPath      string `yaml:"kernel_id_path"`
	NumExecutionsPath string `yaml:"num_executions_path"`
}

// Config is the full, strictly-decoded runtime configuration.
type Config struct {
	Board    Board    `yaml:"board"`
	Oracle   Oracle   `yaml:"oracle"`
	Monitor  Monitor  `yaml:"monitor"`
	Policy   Policy   `yaml:"policy"`
	Workload Workload `yaml:"workload"`
	DumpPath string   `yaml:"dump_path"`
	// ObservationPath is where the Monitor's wire-encoded Records are
	// streamed, one per window. The core is indifferent to
	// whether this backs a plain file, a shared-memory page, or a socket;
	// this configuration only fixes the plain-file sink.
	ObservationPath string `yaml:"observation_path"`
}

// TickPeriod returns Monitor.TickPeriodMS as a time.Duration.
func (m Monitor) TickPeriod() time.Duration {
	return time.Duration(m.TickPeriodMS) * time.Millisecond
}

// Load reads and strictly decodes the YAML configuration at path. An
// unrecognized key is a load-time error rather than a silently ignored
// default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if cfg.Board.PoolHeadroom == 0 {
		cfg.Board.PoolHeadroom = 1
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Board.NumSlots <= 0 {
		return fmt.Errorf("board.num_slots must be positive, got %d", c.Board.NumSlots)
	}
	if c.Board.PoolHeadroom < 0 {
		return fmt.Errorf("board.pool_headroom must be nonnegative, got %d", c.Board.PoolHeadroom)
	}
	if c.Board.PowerWidth != 1 && c.Board.PowerWidth != 2 {
		return fmt.Errorf("board.power_width must be 1 or 2, got %d", c.Board.PowerWidth)
	}
	if c.Monitor.TickPeriodMS <= 0 {
		return fmt.Errorf("monitor.tick_period_ms must be positive, got %d", c.Monitor.TickPeriodMS)
	}
	if c.Monitor.MeasurementsPerTraining <= 0 {
		return fmt.Errorf("monitor.measurements_per_training must be positive, got %d", c.Monitor.MeasurementsPerTraining)
	}
	for _, cu := range c.Board.CUChoices {
		if cu < 1 || cu > c.Board.NumSlots {
			return fmt.Errorf("board.cu_choices entry %d out of range [1, %d]", cu, c.Board.NumSlots)
		}
	}
	return nil
}
