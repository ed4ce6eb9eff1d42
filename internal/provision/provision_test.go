// provision_test.go verifies the bounded polling state machine against scripted stack statuses.
package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// scriptedAPI plays back a fixed status sequence; the last status repeats
// once the script is exhausted. Outputs are attached only to complete
// responses.
type scriptedAPI struct {
	statuses    []cftypes.StackStatus
	outputs     []cftypes.Output
	describes   int
	createInput *cloudformation.CreateStackInput
	regions     []string
}

func (s *scriptedAPI) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	s.createInput = params
	s.recordRegion(optFns)
	return &cloudformation.CreateStackOutput{StackId: aws.String("stack-id-1")}, nil
}

func (s *scriptedAPI) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	s.recordRegion(optFns)
	idx := s.describes
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.describes++
	stack := cftypes.Stack{
		StackName:   params.StackName,
		StackStatus: s.statuses[idx],
	}
	if stack.StackStatus == cftypes.StackStatusCreateComplete {
		stack.Outputs = s.outputs
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []cftypes.Stack{stack}}, nil
}

func (s *scriptedAPI) recordRegion(optFns []func(*cloudformation.Options)) {
	opts := cloudformation.Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	s.regions = append(s.regions, opts.Region)
}

func newTestProvisioner(api API) (*Provisioner, *[]time.Duration) {
	p := New(api, nil)
	sleeps := &[]time.Duration{}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return p, sleeps
}

func TestCollectOutputsReturnsAfterInProgressPolls(t *testing.T) {
	api := &scriptedAPI{
		statuses: []cftypes.StackStatus{
			cftypes.StackStatusCreateInProgress,
			cftypes.StackStatusCreateInProgress,
			cftypes.StackStatusCreateComplete,
		},
		outputs: []cftypes.Output{
			{OutputKey: aws.String("BucketName"), OutputValue: aws.String("arn:aws:s3:::site-bucket")},
		},
	}
	p, sleeps := newTestProvisioner(api)

	outputs, err := p.CollectOutputs(context.Background(), "app", "eu-west-1")
	if err != nil {
		t.Fatalf("collect outputs: %v", err)
	}
	if len(outputs) != 1 || outputs[0].Key != "BucketName" || outputs[0].Value != "arn:aws:s3:::site-bucket" {
		t.Fatalf("outputs = %+v", outputs)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("slept %d times, want exactly 2", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != p.OutputInterval {
			t.Errorf("slept %v, want %v", d, p.OutputInterval)
		}
	}
}

func TestCollectOutputsTimesOut(t *testing.T) {
	api := &scriptedAPI{statuses: []cftypes.StackStatus{cftypes.StackStatusCreateInProgress}}
	p, sleeps := newTestProvisioner(api)
	p.OutputBudget = 10 * time.Second
	p.OutputInterval = 5 * time.Second

	_, err := p.CollectOutputs(context.Background(), "app", "eu-west-1")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("slept %d times, want 2 before the budget ran out", len(*sleeps))
	}
}

func TestCollectOutputsUnexpectedStatus(t *testing.T) {
	api := &scriptedAPI{statuses: []cftypes.StackStatus{cftypes.StackStatusRollbackComplete}}
	p, _ := newTestProvisioner(api)

	_, err := p.CollectOutputs(context.Background(), "app", "eu-west-1")
	var unexpected *UnexpectedStateError
	if !errors.As(err, &unexpected) {
		t.Fatalf("err = %v, want UnexpectedStateError", err)
	}
	if unexpected.Status != string(cftypes.StackStatusRollbackComplete) {
		t.Errorf("raw status = %q, want %q", unexpected.Status, cftypes.StackStatusRollbackComplete)
	}
}

func TestAwaitCreateCompletes(t *testing.T) {
	api := &scriptedAPI{
		statuses: []cftypes.StackStatus{
			cftypes.StackStatusCreateInProgress,
			cftypes.StackStatusCreateComplete,
		},
	}
	p, sleeps := newTestProvisioner(api)

	if err := p.AwaitCreate(context.Background(), "app", "eu-west-1"); err != nil {
		t.Fatalf("await create: %v", err)
	}
	if len(*sleeps) != 1 {
		t.Fatalf("slept %d times, want 1", len(*sleeps))
	}
	if (*sleeps)[0] != p.CreateWaitDelay {
		t.Errorf("slept %v, want %v", (*sleeps)[0], p.CreateWaitDelay)
	}
}

func TestAwaitCreateTimesOut(t *testing.T) {
	api := &scriptedAPI{statuses: []cftypes.StackStatus{cftypes.StackStatusCreateInProgress}}
	p, _ := newTestProvisioner(api)
	p.CreateWaitAttempts = 3

	err := p.AwaitCreate(context.Background(), "app", "eu-west-1")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
	if api.describes != 3 {
		t.Fatalf("described %d times, want the full attempt budget of 3", api.describes)
	}
}

func TestAwaitCreateUnexpectedStatus(t *testing.T) {
	api := &scriptedAPI{statuses: []cftypes.StackStatus{cftypes.StackStatusCreateFailed}}
	p, _ := newTestProvisioner(api)

	err := p.AwaitCreate(context.Background(), "app", "eu-west-1")
	var unexpected *UnexpectedStateError
	if !errors.As(err, &unexpected) {
		t.Fatalf("err = %v, want UnexpectedStateError", err)
	}
}

func TestSubmitRequestsIAMCapabilityAndRegion(t *testing.T) {
	api := &scriptedAPI{}
	p, _ := newTestProvisioner(api)

	id, err := p.Submit(context.Background(), "app", "{}", map[string]string{"b": "2", "a": "1"}, "eu-west-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "stack-id-1" {
		t.Errorf("stack id = %q", id)
	}
	in := api.createInput
	if in == nil {
		t.Fatal("CreateStack never called")
	}
	if len(in.Capabilities) != 1 || in.Capabilities[0] != cftypes.CapabilityCapabilityIam {
		t.Errorf("capabilities = %v, want [CAPABILITY_IAM]", in.Capabilities)
	}
	if len(in.Parameters) != 2 || aws.ToString(in.Parameters[0].ParameterKey) != "a" {
		t.Errorf("parameters = %+v, want sorted [a b]", in.Parameters)
	}
	if len(api.regions) != 1 || api.regions[0] != "eu-west-1" {
		t.Errorf("call regions = %v, want [eu-west-1]", api.regions)
	}
}
