package task

import (
	"slices"
	"strings"
	"testing"
)

const (
	testJobID  = "0191d1a0-1111-7000-8000-000000000001"
	testTaskID = "0191d1a0-2222-7000-8000-000000000002"
)

func validSpec() Spec {
	return Spec{
		TaskName:   "train",
		PkgName:    "resnet",
		JobID:      testJobID,
		TaskID:     testTaskID,
		UserID:     "user-42",
		DatasetDir: "/srv/results/" + testJobID + "/dataset",
		BaseDir:    "/srv/results/" + testJobID,
	}
}

func testTranslator() Translator {
	return Translator{
		HostRoot:    "/srv/results",
		LocalRoot:   "/var/lib/mlrunner/results",
		ContextRoot: "/cog",
	}
}

func TestBuildArgs_FixedFlags(t *testing.T) {
	args, err := validSpec().BuildArgs(testTranslator())
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}

	if args[0] != "cog" || args[1] != "train" {
		t.Fatalf("argv starts with %v, want cog train", args[:2])
	}

	for _, want := range []string{
		"dataset=/cog/dataset",
		"task_id=" + testTaskID,
		"pkg_name=resnet",
		"user_id=user-42",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("argv missing %q: %v", want, args)
		}
	}

	mount := args[len(args)-1]
	wantMount := "type=bind,source=/var/lib/mlrunner/results/" + testJobID + ",target=/cog"
	if mount != wantMount {
		t.Errorf("mount = %s, want %s", mount, wantMount)
	}
}

func TestBuildArgs_TrainedModelTranslated(t *testing.T) {
	spec := validSpec()
	spec.TrainedModel = spec.BaseDir + "/model/weights.bin"

	args, err := spec.BuildArgs(testTranslator())
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	if !slices.Contains(args, "trained_model=/cog/model/weights.bin") {
		t.Errorf("argv missing translated trained_model: %v", args)
	}
}

func TestBuildArgs_NoTrainedModelFlagWhenAbsent(t *testing.T) {
	args, err := validSpec().BuildArgs(testTranslator())
	if err != nil {
		t.Fatalf("BuildArgs failed: %v", err)
	}
	for _, a := range args {
		if strings.HasPrefix(a, "trained_model=") {
			t.Errorf("unexpected trained_model flag in %v", args)
		}
	}
}

func TestValidate_RejectsNonUUIDIDs(t *testing.T) {
	spec := validSpec()
	spec.JobID = "job-1; rm -rf /"
	if err := spec.Validate(); err == nil {
		t.Error("expected error for non-UUID job id")
	}

	spec = validSpec()
	spec.TaskID = "../../etc"
	if err := spec.Validate(); err == nil {
		t.Error("expected error for non-UUID task id")
	}
}

func TestValidate_RejectsUnsafeTokens(t *testing.T) {
	spec := validSpec()
	spec.UserID = "user $(whoami)"
	if err := spec.Validate(); err == nil {
		t.Error("expected error for unsafe user id")
	}

	spec = validSpec()
	spec.PkgName = "pkg|cat"
	if err := spec.Validate(); err == nil {
		t.Error("expected error for unsafe package name")
	}
}

func TestValidate_RequiresPaths(t *testing.T) {
	spec := validSpec()
	spec.DatasetDir = ""
	if err := spec.Validate(); err == nil {
		t.Error("expected error for empty dataset dir")
	}

	spec = validSpec()
	spec.BaseDir = ""
	if err := spec.Validate(); err == nil {
		t.Error("expected error for empty base dir")
	}
}
