package cfn

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"

	"cdk-drift-report/pkg/stack"
)

// CollectResources lists the current resources of every deployed stack,
// together with their last known drift status. It must run after drift
// detection finished, since detection updates those statuses.
func (c *Client) CollectResources(ctx context.Context, deployed []stack.DeployedStack) (map[string]stack.Resources, error) {
	result := make(map[string]stack.Resources, len(deployed))

	for _, s := range deployed {
		resources, err := c.listResources(ctx, s)
		if err != nil {
			return nil, err
		}
		result[s.Name] = resources
	}

	return result, nil
}

func (c *Client) listResources(ctx context.Context, s stack.DeployedStack) (stack.Resources, error) {
	id := s.ID
	if id == "" {
		id = s.Name
	}

	resources := make(stack.Resources)
	p := cloudformation.NewListStackResourcesPaginator(c.api, &cloudformation.ListStackResourcesInput{
		StackName: aws.String(id),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &TransportError{Op: "ListStackResources", Stack: s.Name, Err: err}
		}

		for _, r := range page.StackResourceSummaries {
			summary := stack.ResourceSummary{
				LogicalID:    aws.ToString(r.LogicalResourceId),
				ResourceType: aws.ToString(r.ResourceType),
			}
			if r.DriftInformation != nil {
				summary.DriftStatus = stack.DriftStatus(r.DriftInformation.StackResourceDriftStatus)
			}
			resources[summary.LogicalID] = summary
		}
	}

	c.log.WithField("stack", s.Name).WithField("resources", len(resources)).Debug("Collected stack resources")
	return resources, nil
}
