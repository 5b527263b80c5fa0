package cfn

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// fakeAPI is an in-memory CloudFormation
type fakeAPI struct {
	mu sync.Mutex

	stacks    []types.Stack
	templates map[string]string
	resources map[string][]types.StackResourceSummary

	// detection status sequence per stack; the last entry repeats
	detections map[string][]types.StackDriftDetectionStatus
	drift      map[string]types.StackDriftStatus
	polls      map[string]int

	detectErr error
	pollErr   error
	listErr   error

	calls []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		templates:  make(map[string]string),
		resources:  make(map[string][]types.StackResourceSummary),
		detections: make(map[string][]types.StackDriftDetectionStatus),
		drift:      make(map[string]types.StackDriftStatus),
		polls:      make(map[string]int),
	}
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) pollCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[name]
}

func (f *fakeAPI) DescribeStacks(_ context.Context, in *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DescribeStacks")

	// two stacks per page to exercise pagination
	start := 0
	if in.NextToken != nil {
		fmt.Sscanf(aws.ToString(in.NextToken), "%d", &start)
	}
	end := start + 2
	if end > len(f.stacks) {
		end = len(f.stacks)
	}
	out := &cloudformation.DescribeStacksOutput{Stacks: f.stacks[start:end]}
	if end < len(f.stacks) {
		out.NextToken = aws.String(fmt.Sprint(end))
	}
	return out, nil
}

func (f *fakeAPI) ListStackResources(_ context.Context, in *cloudformation.ListStackResourcesInput, _ ...func(*cloudformation.Options)) (*cloudformation.ListStackResourcesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListStackResources:" + aws.ToString(in.StackName))

	if f.listErr != nil {
		return nil, f.listErr
	}
	return &cloudformation.ListStackResourcesOutput{
		StackResourceSummaries: f.resources[aws.ToString(in.StackName)],
	}, nil
}

func (f *fakeAPI) GetTemplate(_ context.Context, in *cloudformation.GetTemplateInput, _ ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.StackName)
	f.record("GetTemplate:" + name)

	body, ok := f.templates[name]
	if !ok {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: fmt.Sprintf("Stack with id %s does not exist", name),
			Fault:   smithy.FaultClient,
		}
	}
	return &cloudformation.GetTemplateOutput{TemplateBody: aws.String(body)}, nil
}

func (f *fakeAPI) DetectStackDrift(_ context.Context, in *cloudformation.DetectStackDriftInput, _ ...func(*cloudformation.Options)) (*cloudformation.DetectStackDriftOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.StackName)
	f.record("DetectStackDrift:" + name)

	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return &cloudformation.DetectStackDriftOutput{StackDriftDetectionId: aws.String("detection-" + name)}, nil
}

func (f *fakeAPI) DescribeStackDriftDetectionStatus(_ context.Context, in *cloudformation.DescribeStackDriftDetectionStatusInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackDriftDetectionStatusOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.StackDriftDetectionId)[len("detection-"):]
	f.record("DescribeStackDriftDetectionStatus:" + name)

	if f.pollErr != nil {
		return nil, f.pollErr
	}

	seq := f.detections[name]
	i := f.polls[name]
	f.polls[name]++
	if i >= len(seq) {
		i = len(seq) - 1
	}

	out := &cloudformation.DescribeStackDriftDetectionStatusOutput{
		StackDriftDetectionId: in.StackDriftDetectionId,
		DetectionStatus:       seq[i],
	}
	if seq[i] != types.StackDriftDetectionStatusDetectionInProgress {
		out.StackDriftStatus = f.drift[name]
	}
	return out, nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
