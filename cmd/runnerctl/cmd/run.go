package cmd

import (
	"mlrunner/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [job_id]",
	Short: "Run a training task and stream its output",
	Long: `Start a training task inside a provisioned job environment. Training
output is streamed line by line until the task finishes, then the harvested
outcome (metrics and output files) is summarized.

Example:
  runnerctl run 0191d1a0-1111-7000-8000-000000000001 \
    --task-id 0191d1a0-2222-7000-8000-000000000001 \
    --user-id alice --task-name classify \
    --dataset images-v2 --model resnet-base`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		flags := cmd.Flags()
		taskID, _ := flags.GetString("task-id")
		userID, _ := flags.GetString("user-id")
		taskName, _ := flags.GetString("task-name")
		dataset, _ := flags.GetString("dataset")
		datasetBranch, _ := flags.GetString("dataset-branch")
		model, _ := flags.GetString("model")
		modelBranch, _ := flags.GetString("model-branch")
		datasetType, _ := flags.GetString("dataset-type")
		trainedModel, _ := flags.GetString("trained-model")

		if taskID == "" {
			cmd.Println("Error: --task-id is required")
			return
		}
		if userID == "" {
			cmd.Println("Error: --user-id is required")
			return
		}
		if taskName == "" {
			cmd.Println("Error: --task-name is required")
			return
		}
		if dataset == "" {
			cmd.Println("Error: --dataset is required")
			return
		}
		if model == "" {
			cmd.Println("Error: --model is required")
			return
		}

		client := NewRunnerClient(viper.GetString("url"))
		req := api.RunTaskRequest{
			JobID:        jobID,
			TaskID:       taskID,
			UserID:       userID,
			TaskName:     taskName,
			Dataset:      api.RepoRef{Name: dataset, Branch: datasetBranch},
			Model:        api.RepoRef{Name: model, Branch: modelBranch},
			DatasetType:  datasetType,
			TrainedModel: trainedModel,
		}

		outcome, err := client.RunTask(req, func(frame api.StreamFrame) {
			if frame.Outcome == nil {
				cmd.Println(frame.Line)
			}
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}
		if outcome == nil {
			cmd.Println("Stream ended without an outcome")
			return
		}

		printOutcome(cmd, outcome)
	},
}

func printOutcome(cmd *cobra.Command, outcome *api.Outcome) {
	cmd.Println("──────────────────────────────")
	cmd.Printf("%s %sTask Outcome%s\n", outcomeIcon(outcome.Status), colorBold, colorReset)
	cmd.Printf("%sStatus:%s     %s\n", colorDim, colorReset, outcome.Status)
	if outcome.ExitCode == 0 {
		cmd.Printf("%sExit code:%s  %s%d%s\n", colorDim, colorReset, colorGreen, outcome.ExitCode, colorReset)
	} else {
		cmd.Printf("%sExit code:%s  %s%d%s\n", colorDim, colorReset, colorRed, outcome.ExitCode, colorReset)
	}
	for _, m := range outcome.Metrics {
		cmd.Printf("%sMetric:%s     %s = %v\n", colorDim, colorReset, m.Name, m.Value)
	}
	for _, f := range outcome.Files {
		cmd.Printf("%sFile:%s       %s (%d bytes)\n", colorDim, colorReset, f.Name, f.Size)
	}
}

func outcomeIcon(status string) string {
	switch status {
	case api.OutcomeSuccess:
		return colorGreen + "✓" + colorReset
	case api.OutcomeError:
		return colorRed + "✗" + colorReset
	default:
		return colorCyan + "◯" + colorReset
	}
}

func init() {
	flags := runCmd.Flags()
	flags.StringP("task-id", "t", "", "Task ID (required)")
	flags.StringP("user-id", "u", "", "User ID (required)")
	flags.StringP("task-name", "n", "", "Training task name (required)")
	flags.StringP("dataset", "d", "", "Dataset repository name (required)")
	flags.String("dataset-branch", "", "Dataset branch (optional)")
	flags.StringP("model", "m", "", "Model repository name (required)")
	flags.String("model-branch", "", "Model branch (optional)")
	flags.String("dataset-type", api.DatasetTypeDefault, "Dataset type: default or upload")
	flags.String("trained-model", "", "Path to a pretrained model to resume from (optional)")

	rootCmd.AddCommand(runCmd)
}
