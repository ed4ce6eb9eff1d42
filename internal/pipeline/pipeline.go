// File: internal/pipeline/pipeline.go
// Brief: Ordered step execution with halt-on-failure.

// Package pipeline drives a deployment run as a fixed, ordered sequence of
// named steps. Each step checks its feature toggle and returns a three-way
// outcome; the first failed step halts the run with no rollback of work
// already applied.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/example/awsdeploy/internal/config"
	"github.com/example/awsdeploy/internal/provision"
	"github.com/fatih/color"
	"go.uber.org/zap"
)

// TestRunner runs the application's unit-test suite; the pipeline treats it
// as opaque.
type TestRunner interface {
	RunAll(ctx context.Context, sourcePath string) (bool, error)
}

// Uploader publishes artifacts to object storage.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, bucket, key string) error
	UploadDirectory(ctx context.Context, localRoot, bucket string) error
}

// Provisioner creates infrastructure stacks and waits for them.
type Provisioner interface {
	Submit(ctx context.Context, name, templateBody string, params map[string]string, region string) (string, error)
	AwaitCreate(ctx context.Context, name, region string) error
	CollectOutputs(ctx context.Context, name, region string) ([]provision.Output, error)
}

// Clients bundles the provider-backed collaborators created once at the
// init-clients step and reused for the rest of the run.
type Clients struct {
	Provisioner Provisioner
	Uploader    Uploader
}

// ClientFactory constructs the provider clients for a run. The credential
// profile is passed explicitly instead of mutating the process environment.
type ClientFactory func(ctx context.Context, profile string) (Clients, error)

// Step is one named unit of pipeline work.
type Step struct {
	Name string
	Run  func(ctx context.Context) Outcome
}

// Engine owns the step sequence and the run state the steps share.
type Engine struct {
	cfg     *config.File
	log     *zap.Logger
	out     io.Writer
	runner  TestRunner
	factory ClientFactory
	clients Clients
	state   *State
}

// New returns an Engine for one run of the given deployfile.
func New(cfg *config.File, log *zap.Logger, out io.Writer, runner TestRunner, factory ClientFactory) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Engine{
		cfg:     cfg,
		log:     log,
		out:     out,
		runner:  runner,
		factory: factory,
		state:   NewState(),
	}
}

// State exposes the run state for inspection after a run.
func (e *Engine) State() *State {
	return e.state
}

// Run executes the deployment pipeline and reports whether it completed
// without a failed step.
func (e *Engine) Run(ctx context.Context) Outcome {
	e.log.Info("starting deployment pipeline")
	result := e.execute(ctx, e.steps())
	e.log.Info("finished deployment pipeline", zap.Stringer("result", result))
	return result
}

// steps returns the fixed step sequence. The order is part of the contract:
// stacks are created only after packages are uploaded, and outputs are
// collected before static artifacts can resolve a bucket name.
func (e *Engine) steps() []Step {
	return []Step{
		{Name: "run-tests", Run: e.runTests},
		{Name: "build-packages", Run: e.buildPackages},
		{Name: "init-aws-clients", Run: e.initClients},
		{Name: "upload-packages", Run: e.uploadPackages},
		{Name: "create-stacks", Run: e.createStacks},
		{Name: "collect-stack-outputs", Run: e.collectOutputs},
		{Name: "upload-static-artifacts", Run: e.uploadStaticArtifacts},
	}
}

func (e *Engine) execute(ctx context.Context, steps []Step) Outcome {
	for _, step := range steps {
		e.log.Info("applying step", zap.String("step", step.Name))
		outcome := step.Run(ctx)
		e.log.Info("step finished",
			zap.String("step", step.Name),
			zap.Stringer("outcome", outcome))
		fmt.Fprintf(e.out, "%s %s\n", outcomeBadge(outcome), step.Name)
		if outcome == Failed {
			e.log.Error("step failed, terminating pipeline", zap.String("step", step.Name))
			return Failed
		}
	}
	return Succeeded
}

var (
	badgeSucceeded = color.New(color.FgGreen).Sprint("ok  ")
	badgeFailed    = color.New(color.FgRed, color.Bold).Sprint("FAIL")
	badgeSkipped   = color.New(color.FgYellow).Sprint("skip")
)

func outcomeBadge(o Outcome) string {
	switch o {
	case Succeeded:
		return badgeSucceeded
	case Failed:
		return badgeFailed
	default:
		return badgeSkipped
	}
}
