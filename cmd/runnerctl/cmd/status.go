package cmd

import (
	"mlrunner/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show runner availability",
	Long:  `Report whether the runner currently has free worker slots and how many remain.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		client := NewRunnerClient(url)

		status, err := client.GetStatus()
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		printStatus(cmd, status)
	},
}

func printStatus(cmd *cobra.Command, status *api.StatusResponse) {
	icon := statusIcon(status.Status)
	cmd.Printf("%s %sRunner Status%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(status.Status))
	if status.Slots > 0 {
		cmd.Printf("%sFree slots:%s  %s%d%s\n", colorDim, colorReset, colorGreen, status.Slots, colorReset)
	} else {
		cmd.Printf("%sFree slots:%s  %s%d%s\n", colorDim, colorReset, colorRed, status.Slots, colorReset)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case api.StatusAvailable:
		return colorGreen + "✓" + colorReset
	case api.StatusOccupied:
		return colorYellow + "⏳" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case api.StatusAvailable:
		return icon + " " + colorGreen + status + colorReset
	case api.StatusOccupied:
		return icon + " " + colorYellow + status + colorReset
	default:
		return status
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
