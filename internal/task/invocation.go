package task

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// safeToken matches values that may be interpolated into the invocation.
var safeToken = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// Spec describes one training-task invocation. All paths are in the host
// view; the builder translates them for the execution context.
type Spec struct {
	TaskName     string
	PkgName      string
	JobID        string
	TaskID       string
	UserID       string
	DatasetDir   string
	BaseDir      string
	TrainedModel string // optional pretrained-model path
}

// Validate checks every interpolated value before it reaches the argv.
// Job and task ids must be UUIDs; names and the user id must be plain
// tokens. This replaces shell interpolation as the injection boundary.
func (s Spec) Validate() error {
	if _, err := uuid.Parse(s.JobID); err != nil {
		return fmt.Errorf("invalid job id %q: %w", s.JobID, err)
	}
	if _, err := uuid.Parse(s.TaskID); err != nil {
		return fmt.Errorf("invalid task id %q: %w", s.TaskID, err)
	}
	if !safeToken.MatchString(s.PkgName) {
		return fmt.Errorf("invalid package name %q", s.PkgName)
	}
	if !safeToken.MatchString(s.UserID) {
		return fmt.Errorf("invalid user id %q", s.UserID)
	}
	if s.DatasetDir == "" {
		return fmt.Errorf("dataset dir is required")
	}
	if s.BaseDir == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// BuildArgs produces the training-CLI argv: the fixed cog flags carrying the
// task identity, the dataset location in the context view, the optional
// pretrained model, and the bind mount of the base directory. No shell is
// involved; every element is a discrete argv entry.
func (s Spec) BuildArgs(tr Translator) ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"cog", "train",
		"-n", s.JobID,
		"-i", "dataset=" + tr.ToContext(s.DatasetDir, s.BaseDir),
		"-i", "task_id=" + s.TaskID,
		"-i", "pkg_name=" + s.PkgName,
		"-i", "user_id=" + s.UserID,
	}
	if s.TrainedModel != "" {
		args = append(args, "-i", "trained_model="+tr.ToContext(s.TrainedModel, s.BaseDir))
	}
	args = append(args, "--mount",
		fmt.Sprintf("type=bind,source=%s,target=%s", tr.ToLocal(s.BaseDir), tr.ContextRoot))

	return args, nil
}
