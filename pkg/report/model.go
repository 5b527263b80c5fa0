package report

import (
	"fmt"

	"cdk-drift-report/pkg/diff"
	"cdk-drift-report/pkg/stack"
)

// Classification tells how a desired stack relates to its deployed counterpart
type Classification int

const (
	Unchanged Classification = iota
	Changed
	New
)

func (c Classification) String() string {
	switch c {
	case New:
		return "new"
	case Changed:
		return "changed"
	}
	return "unchanged"
}

// DiffLabel is the rendered form of a resource's change impact
type DiffLabel string

const (
	LabelNone       DiffLabel = ""
	LabelCreate     DiffLabel = "create"
	LabelUpdate     DiffLabel = "update"
	LabelReplace    DiffLabel = "replace"
	LabelMayReplace DiffLabel = "may-replace"
	LabelDestroy    DiffLabel = "destroy"
	LabelRemove     DiffLabel = "remove"
)

// DiffLabelFor maps a change impact to its label. WillDestroy deletes the
// physical resource while WillOrphan only drops it from the stack.
func DiffLabelFor(i diff.Impact) DiffLabel {
	switch i {
	case diff.NoChange:
		return LabelNone
	case diff.WillCreate:
		return LabelCreate
	case diff.WillUpdate:
		return LabelUpdate
	case diff.WillReplace:
		return LabelReplace
	case diff.MayReplace:
		return LabelMayReplace
	case diff.WillDestroy:
		return LabelDestroy
	case diff.WillOrphan:
		return LabelRemove
	}
	panic(fmt.Sprintf("unhandled change impact %d", i))
}

// DriftLabel is the rendered severity of a resource's drift status
type DriftLabel int

const (
	DriftNone DriftLabel = iota
	DriftWarning
	DriftAlert
	DriftSuccess
)

// DriftLabelFor maps a resource drift status to its label
func DriftLabelFor(s stack.DriftStatus) DriftLabel {
	switch s {
	case stack.DriftNotChecked:
		return DriftWarning
	case stack.DriftModified:
		return DriftAlert
	case stack.DriftInSync:
		return DriftSuccess
	}
	return DriftNone
}

// ResourceRow is one line of a stack's resource table
type ResourceRow struct {
	LogicalID    string
	ResourceType string
	DiffLabel    DiffLabel
	DriftStatus  stack.DriftStatus
	DriftLabel   DriftLabel
	DriftLink    string
}

// StackReport is the reconciled view of one desired stack
type StackReport struct {
	Name           string
	StackID        string
	Classification Classification
	Diff           *diff.TemplateDiff // nil for new stacks
	DriftedOverall bool
	Rows           []ResourceRow
}

// Report is the reconciled view of all stacks of a run
type Report struct {
	Title          string
	Commit         string
	DriftDetection bool
	Stacks         []StackReport
	EditedCount    int
	Drifted        bool
}
