package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/accelcore/dispatch/internal/config"
)

// infoCmd is a cobra subcommand rather than a special-cased positional
// string: it prints the resolved configuration and exits 0 without dialing
// the Oracle or touching the accelerator.
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the resolved configuration and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printConfig(cfg)
	},
}

func printConfig(cfg *config.Config) {
	fmt.Println("dispatch core configuration")
	fmt.Printf("  board.num_slots           = %d\n", cfg.Board.NumSlots)
	fmt.Printf("  board.pool_headroom       = %d\n", cfg.Board.PoolHeadroom)
	fmt.Printf("  board.power_width         = %d\n", cfg.Board.PowerWidth)
	fmt.Printf("  board.cu_choices          = %v\n", cfg.Board.CUChoices)
	fmt.Printf("  oracle.training_socket    = %s\n", cfg.Oracle.TrainingSocketPath)
	fmt.Printf("  oracle.prediction_socket  = %s\n", cfg.Oracle.PredictionSocketPath)
	fmt.Printf("  monitor.tick_period_ms    = %d\n", cfg.Monitor.TickPeriodMS)
	fmt.Printf("  monitor.measurements_per_training = %d\n", cfg.Monitor.MeasurementsPerTraining)
	fmt.Printf("  monitor.observations_per_window   = %.3f\n", cfg.Monitor.ObservationsPerWindow)
	fmt.Printf("  policy.name               = %s\n", cfg.Policy.Name)
	fmt.Printf("  policy.candidate_depth    = %d\n", cfg.Policy.CandidateDepth)
	fmt.Printf("  workload.inter_arrival_path  = %s\n", cfg.Workload.InterArrivalPath)
	fmt.Printf("  workload.kernel_id_path      = %s\n", cfg.Workload.KernelIDPath)
	fmt.Printf("  workload.num_executions_path = %s\n", cfg.Workload.NumExecutionsPath)
	fmt.Printf("  dump_path                 = %s\n", cfg.DumpPath)
	fmt.Printf("  observation_path          = %s\n", cfg.ObservationPath)
}
