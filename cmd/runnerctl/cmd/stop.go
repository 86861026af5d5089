package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var stopCmd = &cobra.Command{
	Use:   "stop [job_id]",
	Short: "Stop the containers of a running task",
	Long:  `Stop and remove every container spawned from the image named after the job.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		client := NewRunnerClient(viper.GetString("url"))
		if err := client.StopTask(jobID); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Task stopped\nJob ID: %s\n", jobID)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
