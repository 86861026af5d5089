package cmd

import (
	"mlrunner/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var createCmd = &cobra.Command{
	Use:   "create [job_id]",
	Short: "Provision a job environment",
	Long: `Provision a workspace for a job: create its directory layout and clone
the dataset and model repositories into it.

Example:
  runnerctl create 0191d1a0-1111-7000-8000-000000000001 --dataset images-v2 --model resnet-base
  runnerctl create 0191d1a0-1111-7000-8000-000000000001 --dataset images-v2 --dataset-branch dev --model resnet-base`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		flags := cmd.Flags()
		dataset, _ := flags.GetString("dataset")
		datasetBranch, _ := flags.GetString("dataset-branch")
		model, _ := flags.GetString("model")
		modelBranch, _ := flags.GetString("model-branch")

		if dataset == "" {
			cmd.Println("Error: --dataset is required")
			return
		}
		if model == "" {
			cmd.Println("Error: --model is required")
			return
		}

		client := NewRunnerClient(viper.GetString("url"))
		req := api.CreateEnvironmentRequest{
			JobID:   jobID,
			Dataset: api.RepoRef{Name: dataset, Branch: datasetBranch},
			Model:   api.RepoRef{Name: model, Branch: modelBranch},
		}

		if err := client.CreateEnvironment(req); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Environment created!\nJob ID: %s\n", jobID)
	},
}

func init() {
	flags := createCmd.Flags()
	flags.StringP("dataset", "d", "", "Dataset repository name (required)")
	flags.String("dataset-branch", "", "Dataset branch (optional)")
	flags.StringP("model", "m", "", "Model repository name (required)")
	flags.String("model-branch", "", "Model branch (optional)")

	rootCmd.AddCommand(createCmd)
}
