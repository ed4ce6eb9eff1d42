package testrunner

import (
	"context"
	"testing"
)

func TestRunAllPassing(t *testing.T) {
	r := New(nil)
	r.Command = []string{"sh", "-c", "exit 0"}
	passed, err := r.RunAll(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !passed {
		t.Fatal("clean exit should report passed")
	}
}

func TestRunAllFailing(t *testing.T) {
	r := New(nil)
	r.Command = []string{"sh", "-c", "exit 1"}
	passed, err := r.RunAll(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("a failing suite is not a runner error: %v", err)
	}
	if passed {
		t.Fatal("non-zero exit should report not passed")
	}
}

func TestRunAllMissingCommand(t *testing.T) {
	r := New(nil)
	r.Command = []string{"definitely-not-a-real-binary-awsdeploy"}
	if _, err := r.RunAll(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error when the test command cannot run")
	}
}
