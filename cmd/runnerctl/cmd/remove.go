package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var removeCmd = &cobra.Command{
	Use:   "remove [job_id]",
	Short: "Remove a job environment",
	Long:  `Delete a job's workspace directory from the runner. Removing an environment that does not exist is not an error.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		client := NewRunnerClient(viper.GetString("url"))
		if err := client.RemoveEnvironment(jobID); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Environment removed\nJob ID: %s\n", jobID)
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
