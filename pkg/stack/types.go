package stack

import "cdk-drift-report/pkg/template"

// DesiredStack is a stack synthesized locally from the CDK app
type DesiredStack struct {
	Name     string
	Template *template.Template
}

// DeployedStack is a stack currently present in CloudFormation
type DeployedStack struct {
	Name   string
	ID     string
	Status string
}

// DriftStatus is the last known drift status of a single resource.
// The zero value means the resource has no drift information yet.
type DriftStatus string

const (
	DriftUnknown    DriftStatus = ""
	DriftNotChecked DriftStatus = "NOT_CHECKED"
	DriftInSync     DriftStatus = "IN_SYNC"
	DriftModified   DriftStatus = "MODIFIED"
	DriftDeleted    DriftStatus = "DELETED"
)

// ResourceSummary is a deployed resource together with its drift status
type ResourceSummary struct {
	LogicalID    string
	ResourceType string
	DriftStatus  DriftStatus
}

// Resources indexes a stack's deployed resources by logical id
type Resources map[string]ResourceSummary

// Names returns the names of the given desired stacks, in order.
func Names(stacks []DesiredStack) []string {
	names := make([]string, 0, len(stacks))
	for _, s := range stacks {
		names = append(names, s.Name)
	}
	return names
}

// Index returns the deployed stacks keyed by name
func Index(stacks []DeployedStack) map[string]DeployedStack {
	m := make(map[string]DeployedStack, len(stacks))
	for _, s := range stacks {
		m[s.Name] = s
	}
	return m
}
