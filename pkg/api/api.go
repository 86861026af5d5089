// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the runner daemon.
package api

// Dataset type values accepted by RunTaskRequest.
const (
	DatasetTypeUpload  = "upload"
	DatasetTypeDefault = "default"
)

// Runner status values.
const (
	StatusAvailable = "available"
	StatusOccupied  = "occupied"
)

// RepoRef names a git-hosted dataset or model, optionally pinned to a branch.
type RepoRef struct {
	Name   string `json:"name"`
	Branch string `json:"branch,omitempty"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Status string `json:"status"`
	Slots  int    `json:"slots"`
}

// CreateEnvironmentRequest is the request body for provisioning a job workspace.
type CreateEnvironmentRequest struct {
	JobID   string  `json:"job_id"`
	Dataset RepoRef `json:"dataset"`
	Model   RepoRef `json:"model"`
}

// RunTaskRequest is the request body for starting a training task.
// The response is an NDJSON stream of StreamFrame values.
type RunTaskRequest struct {
	JobID        string  `json:"job_id"`
	TaskID       string  `json:"task_id"`
	UserID       string  `json:"user_id"`
	TaskName     string  `json:"task_name"`
	Dataset      RepoRef `json:"dataset"`
	Model        RepoRef `json:"model"`
	DatasetType  string  `json:"dataset_type"`
	ResultsDir   string  `json:"results_dir,omitempty"`
	TrainedModel string  `json:"trained_model,omitempty"`
}

// StreamFrame is one NDJSON frame of the run-task stream. Exactly one of
// Line or Outcome is set; the Outcome frame is terminal.
type StreamFrame struct {
	Line    string   `json:"line,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Metric is one named training metric from a result document.
type Metric struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// FileBlob is one decoded output file from a result document.
type FileBlob struct {
	Name      string `json:"name"`
	Extension string `json:"extension,omitempty"`
	Size      int    `json:"size"`
	Content   []byte `json:"content"`
}

// Outcome statuses.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeNone    = "none"
)

// Outcome is the harvested result of one task run.
type Outcome struct {
	Status          string     `json:"status"`
	TaskID          string     `json:"task_id,omitempty"`
	Metrics         []Metric   `json:"metrics,omitempty"`
	Files           []FileBlob `json:"files,omitempty"`
	PkgName         string     `json:"pkg_name,omitempty"`
	PretrainedModel string     `json:"pretrained_model,omitempty"`
	ExitCode        int        `json:"exit_code"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HostSnapshot is the payload POSTed to the billing endpoint.
type HostSnapshot struct {
	RunnerID   string `json:"runner_id"`
	Timestamp  int64  `json:"timestamp"`
	UptimeSecs int64  `json:"uptime_secs"`
	NumCPU     int    `json:"num_cpu"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
	SlotStatus string `json:"slot_status"`
}
