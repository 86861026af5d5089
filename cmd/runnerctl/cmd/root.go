package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "runnerctl",
	Short: "Runnerctl is a command line tool for driving a training runner node",
	Long: `runnerctl is the command-line interface for a single-node training runner.

The runner provisions per-job workspaces (dataset + model checkouts), executes
training tasks inside the cog CLI gated by worker slots, streams live task
output, and returns a structured outcome when the task finishes.

Common workflows:

  Check whether the node has a free worker slot:
    runnerctl status

  Provision a job environment:
    runnerctl create <job-id> --dataset org/dataset --model org/model

  Run a training task and stream its output:
    runnerctl run <job-id> --task-id <uuid> --user-id user-1 --task-name resnet \
      --dataset org/dataset --model org/model

  Stop a job's containers out-of-band:
    runnerctl stop <job-id>

  Delete a job's workspace:
    runnerctl remove <job-id>

Configuration:
  Set the runner endpoint via flag, environment, or config file:
    RUNNER_URL    Runner daemon URL (default: http://localhost:50051)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".runnerctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RUNNER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.runnerctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:50051", "Runner daemon URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
