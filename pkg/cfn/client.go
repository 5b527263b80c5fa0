package cfn

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cdk-drift-report/pkg/stack"
	"cdk-drift-report/pkg/template"
)

// API is the subset of the CloudFormation client used here
type API interface {
	cloudformation.DescribeStacksAPIClient
	cloudformation.ListStackResourcesAPIClient
	GetTemplate(ctx context.Context, params *cloudformation.GetTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error)
	DetectStackDrift(ctx context.Context, params *cloudformation.DetectStackDriftInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DetectStackDriftOutput, error)
	DescribeStackDriftDetectionStatus(ctx context.Context, params *cloudformation.DescribeStackDriftDetectionStatusInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackDriftDetectionStatusOutput, error)
}

// Client reads deployed stack state from CloudFormation
type Client struct {
	api API
	log logrus.FieldLogger
}

// NewClient creates a CloudFormation client from the default AWS config
func NewClient(ctx context.Context, region string, log logrus.FieldLogger) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return NewClientWithAPI(cloudformation.NewFromConfig(cfg), log), nil
}

// NewClientWithAPI creates a client on top of an existing API implementation
func NewClientWithAPI(api API, log logrus.FieldLogger) *Client {
	return &Client{api: api, log: log}
}

// DeployedStacks returns the deployed counterparts of the named stacks, in
// the order of names. Deleted stacks and stacks still under review are skipped.
func (c *Client) DeployedStacks(ctx context.Context, names []string) ([]stack.DeployedStack, error) {
	found := make(map[string]stack.DeployedStack)

	p := cloudformation.NewDescribeStacksPaginator(c.api, &cloudformation.DescribeStacksInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &TransportError{Op: "DescribeStacks", Err: err}
		}

		for _, s := range page.Stacks {
			switch s.StackStatus {
			case types.StackStatusDeleteComplete, types.StackStatusReviewInProgress:
				continue
			}
			name := aws.ToString(s.StackName)
			found[name] = stack.DeployedStack{
				Name:   name,
				ID:     aws.ToString(s.StackId),
				Status: string(s.StackStatus),
			}
		}
	}

	var deployed []stack.DeployedStack
	for _, name := range names {
		if s, ok := found[name]; ok {
			deployed = append(deployed, s)
		}
	}

	c.log.WithField("count", len(deployed)).Debug("Listed deployed stacks")
	return deployed, nil
}

// DeployedTemplate returns the template a stack was deployed with. A stack
// that does not exist yields an empty template.
func (c *Client) DeployedTemplate(ctx context.Context, stackName string) (*template.Template, error) {
	input := &cloudformation.GetTemplateInput{
		StackName:     aws.String(stackName),
		TemplateStage: types.TemplateStageOriginal,
	}

	output, err := c.api.GetTemplate(ctx, input)
	if err != nil {
		if isStackNotFound(err) {
			return template.Empty(), nil
		}
		return nil, &TransportError{Op: "GetTemplate", Stack: stackName, Err: err}
	}

	tmpl, err := template.Parse([]byte(aws.ToString(output.TemplateBody)))
	if err != nil {
		return nil, errors.Wrapf(err, "deployed template of stack %s", stackName)
	}
	return tmpl, nil
}
