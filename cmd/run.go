package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/accelcore/dispatch/internal/accelerator"
	"github.com/accelcore/dispatch/internal/config"
	"github.com/accelcore/dispatch/internal/coreapp"
	"github.com/accelcore/dispatch/internal/kernels"
	"github.com/accelcore/dispatch/internal/observation"
	"github.com/accelcore/dispatch/internal/telemetry"
	"github.com/accelcore/dispatch/internal/workload"
)

var runCmd = &cobra.Command{
	Use:   "run <n-workloads>",
	Short: "Run the dispatch core for the given number of workloads",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			logrus.Fatalf("n-workloads must be a positive decimal integer, got %q", args[0])
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		if err := runWorkloads(cfg, n); err != nil {
			logrus.Errorf("dispatch: %v", err)
			os.Exit(1)
		}
	},
}

// zeroCPU stands in for the out-of-scope CPU usage sampler; the core only
// needs the (user, kernel, idle) snapshot shape, not a real reading.
func zeroCPU() observation.CPUUsage { return observation.CPUUsage{} }

// runWorkloads replays n workloads of the configured plan back to back on
// one long-lived Core: a single Oracle connection, Worker Pool, and
// Monitor span every workload, with a workload-boundary marker framed on
// the training channel after each workload drains and the Oracle shutdown message
// sent only once at the end. The full Historical Log is dumped after the
// last workload drains.
func runWorkloads(cfg *config.Config, n int) error {
	dump, err := os.Create(cfg.DumpPath)
	if err != nil {
		return fmt.Errorf("create dump file %s: %w", cfg.DumpPath, err)
	}
	defer dump.Close()

	sink, err := os.Create(cfg.ObservationPath)
	if err != nil {
		return fmt.Errorf("create observation sink %s: %w", cfg.ObservationPath, err)
	}
	defer sink.Close()

	plan, err := workload.LoadPlan(cfg.Workload.InterArrivalPath, cfg.Workload.KernelIDPath, cfg.Workload.NumExecutionsPath)
	if err != nil {
		return fmt.Errorf("load workload plan: %w", err)
	}

	fmt.Printf("dispatch: %d slots, policy %q, %d workload(s)\n", cfg.Board.NumSlots, cfg.Policy.Name, n)

	c, err := coreapp.New(cfg, coreapp.Deps{
		Device:  accelerator.NewFake(),
		Kernels: kernels.NewFakeRegistry(nil),
		Telem:   telemetry.NewFake(),
		CPU:     zeroCPU,
		Plan:    plan,
		Sink:    sink,
	})
	if err != nil {
		return fmt.Errorf("build core: %w", err)
	}

	if err := c.Run(context.Background(), n); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	total, passed := summarize(c)
	fmt.Printf("dispatch: shutdown — %d tasks dispatched, %d passed, %d failed\n", total, passed, total-passed)

	if err := c.Dump(dump); err != nil {
		return fmt.Errorf("dump history: %w", err)
	}
	return nil
}

func summarize(c *coreapp.Core) (total, passed int) {
	for _, t := range c.History.Snapshot() {
		total++
		if t.Passed {
			passed++
		}
	}
	return total, passed
}
