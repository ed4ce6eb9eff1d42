// File: internal/provision/provision.go
// Brief: CloudFormation stack creation and bounded status polling.

// Package provision submits CloudFormation templates and turns the
// asynchronous create operation into a synchronous result with two
// independently bounded polls: a long creation wait (tens of minutes for
// real infrastructure) and a short output-collection wait that covers the
// window where a stack reports complete before its outputs are queryable.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"go.uber.org/zap"
)

// Creation wait: 30s between attempts, 50 attempts, roughly a 25 minute
// ceiling. Output collection: 50s total budget polled every 5s.
const (
	DefaultCreateWaitDelay    = 30 * time.Second
	DefaultCreateWaitAttempts = 50
	DefaultOutputBudget       = 50 * time.Second
	DefaultOutputInterval     = 5 * time.Second
)

// ErrWaitTimeout reports a poll budget exhausted before the stack reached a
// terminal state.
var ErrWaitTimeout = errors.New("wait budget exhausted before stack reached a terminal state")

// UnexpectedStateError reports a stack status the poll loops do not expect
// while waiting for creation to complete. It carries the raw provider status
// string for diagnostics.
type UnexpectedStateError struct {
	Stack  string
	Status string
}

func (e *UnexpectedStateError) Error() string {
	return fmt.Sprintf("stack %s entered unexpected status %q", e.Stack, e.Status)
}

// State is the provisioning state machine's view of a stack.
type State int

const (
	StateInProgress State = iota
	StateComplete
	StateFailed
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in-progress"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Output is one key/value pair exposed by a created stack.
type Output struct {
	Key   string
	Value string
}

// API is the CloudFormation surface the provisioner needs, allowing
// injection of a scripted fake in tests.
type API interface {
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// Provisioner creates stacks and waits for them. The wait tunables are
// exported so tests can shrink them; sleep is injectable so tests can count
// intervals without real delays.
type Provisioner struct {
	client API
	log    *zap.Logger

	CreateWaitDelay    time.Duration
	CreateWaitAttempts int
	OutputBudget       time.Duration
	OutputInterval     time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Provisioner with the default wait configuration.
func New(client API, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{
		client:             client,
		log:                log,
		CreateWaitDelay:    DefaultCreateWaitDelay,
		CreateWaitAttempts: DefaultCreateWaitAttempts,
		OutputBudget:       DefaultOutputBudget,
		OutputInterval:     DefaultOutputInterval,
		sleep:              sleepContext,
	}
}

// Submit starts stack creation and returns the provider's stack identifier.
// The IAM capability is always requested.
func (p *Provisioner) Submit(ctx context.Context, name, templateBody string, params map[string]string, region string) (string, error) {
	input := &cloudformation.CreateStackInput{
		StackName:    aws.String(name),
		TemplateBody: aws.String(templateBody),
		Parameters:   toParameters(params),
		Capabilities: []cftypes.Capability{cftypes.CapabilityCapabilityIam},
	}
	out, err := p.client.CreateStack(ctx, input, withRegion(region))
	if err != nil {
		return "", fmt.Errorf("create stack %s: %w", name, err)
	}
	return aws.ToString(out.StackId), nil
}

// AwaitCreate polls the stack until creation completes, waiting
// CreateWaitDelay between attempts for at most CreateWaitAttempts attempts.
// Exhausting the attempt budget is a timeout failure; any status other than
// in-progress or complete is an UnexpectedStateError.
func (p *Provisioner) AwaitCreate(ctx context.Context, name, region string) error {
	for attempt := 0; attempt < p.CreateWaitAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.CreateWaitDelay); err != nil {
				return err
			}
		}
		desc, err := p.describe(ctx, name, region)
		if err != nil {
			return err
		}
		switch desc.state {
		case StateComplete:
			return nil
		case StateInProgress:
			p.log.Debug("stack creation in progress",
				zap.String("stack", name),
				zap.Int("attempt", attempt+1),
				zap.Int("maxAttempts", p.CreateWaitAttempts))
		default:
			return &UnexpectedStateError{Stack: name, Status: desc.status}
		}
	}
	return fmt.Errorf("stack %s: %w", name, ErrWaitTimeout)
}

// CollectOutputs polls the stack until it reports complete, then returns its
// outputs. The poll budget is OutputBudget, decremented by OutputInterval per
// sleep; exhausting it is a timeout failure, and any status other than
// in-progress or complete is an UnexpectedStateError.
func (p *Provisioner) CollectOutputs(ctx context.Context, name, region string) ([]Output, error) {
	remaining := p.OutputBudget
	for {
		desc, err := p.describe(ctx, name, region)
		if err != nil {
			return nil, err
		}
		switch desc.state {
		case StateComplete:
			return desc.outputs, nil
		case StateInProgress:
			if remaining < p.OutputInterval {
				return nil, fmt.Errorf("stack %s outputs: %w", name, ErrWaitTimeout)
			}
			p.log.Info("stack still in progress, waiting for outputs",
				zap.String("stack", name),
				zap.Duration("interval", p.OutputInterval),
				zap.Duration("remaining", remaining))
			if err := p.sleep(ctx, p.OutputInterval); err != nil {
				return nil, err
			}
			remaining -= p.OutputInterval
		default:
			return nil, &UnexpectedStateError{Stack: name, Status: desc.status}
		}
	}
}

type stackDescription struct {
	state   State
	status  string
	outputs []Output
}

func (p *Provisioner) describe(ctx context.Context, name, region string) (stackDescription, error) {
	out, err := p.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(name),
	}, withRegion(region))
	if err != nil {
		return stackDescription{}, fmt.Errorf("describe stack %s: %w", name, err)
	}
	if len(out.Stacks) == 0 {
		return stackDescription{}, fmt.Errorf("describe stack %s: empty response", name)
	}
	st := out.Stacks[0]
	outputs := make([]Output, 0, len(st.Outputs))
	for _, o := range st.Outputs {
		outputs = append(outputs, Output{Key: aws.ToString(o.OutputKey), Value: aws.ToString(o.OutputValue)})
	}
	return stackDescription{
		state:   stateFor(st.StackStatus),
		status:  string(st.StackStatus),
		outputs: outputs,
	}, nil
}

func stateFor(status cftypes.StackStatus) State {
	switch status {
	case cftypes.StackStatusCreateInProgress:
		return StateInProgress
	case cftypes.StackStatusCreateComplete:
		return StateComplete
	case cftypes.StackStatusCreateFailed,
		cftypes.StackStatusRollbackInProgress,
		cftypes.StackStatusRollbackFailed,
		cftypes.StackStatusRollbackComplete:
		return StateFailed
	default:
		return StateUnknown
	}
}

// withRegion overrides the client's region for a single call, so one client
// serves stacks declared in different regions.
func withRegion(region string) func(*cloudformation.Options) {
	return func(o *cloudformation.Options) {
		if region != "" {
			o.Region = region
		}
	}
}

func toParameters(params map[string]string) []cftypes.Parameter {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]cftypes.Parameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, cftypes.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(params[k]),
		})
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
