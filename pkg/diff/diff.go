package diff

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"cdk-drift-report/pkg/template"
)

// Impact is the predicted effect of a template update on a single resource
type Impact int

const (
	NoChange Impact = iota
	WillCreate
	WillUpdate
	WillReplace
	MayReplace
	WillDestroy
	WillOrphan
)

func (i Impact) String() string {
	switch i {
	case NoChange:
		return "NO_CHANGE"
	case WillCreate:
		return "WILL_CREATE"
	case WillUpdate:
		return "WILL_UPDATE"
	case WillReplace:
		return "WILL_REPLACE"
	case MayReplace:
		return "MAY_REPLACE"
	case WillDestroy:
		return "WILL_DESTROY"
	case WillOrphan:
		return "WILL_ORPHAN"
	}
	return "UNKNOWN"
}

// ResourceChange describes how a resource changes between two templates.
// OldType is empty for created resources, NewType for removed ones.
type ResourceChange struct {
	Impact  Impact
	OldType string
	NewType string
}

// TemplateDiff is the difference between a deployed and a desired template
type TemplateDiff struct {
	DifferenceCount int
	Resources       map[string]ResourceChange
}

// IsEmpty reports whether the templates are equivalent
func (d *TemplateDiff) IsEmpty() bool {
	return d == nil || d.DifferenceCount == 0
}

// Change returns the change recorded for a logical id; unknown ids are unchanged.
func (d *TemplateDiff) Change(logicalID string) (ResourceChange, bool) {
	if d == nil {
		return ResourceChange{}, false
	}
	c, ok := d.Resources[logicalID]
	return c, ok
}

// replacementProne lists property names that, on most resource types, can
// only be changed by creating a new physical resource.
var replacementProne = map[string]bool{
	"AvailabilityZone":     true,
	"BucketName":           true,
	"ClusterName":          true,
	"DBInstanceIdentifier": true,
	"FunctionName":         true,
	"KeySchema":            true,
	"QueueName":            true,
	"RoleName":             true,
	"TableName":            true,
	"TopicName":            true,
	"VpcId":                true,
}

// Templates computes the difference between the deployed template (actual)
// and the locally synthesized one (desired).
func Templates(actual, desired *template.Template) *TemplateDiff {
	if actual == nil {
		actual = template.Empty()
	}
	if desired == nil {
		desired = template.Empty()
	}

	d := &TemplateDiff{Resources: make(map[string]ResourceChange)}

	for _, id := range unionKeys(actual.Resources, desired.Resources) {
		old, inActual := actual.Resources[id]
		cur, inDesired := desired.Resources[id]

		var c ResourceChange
		switch {
		case !inActual:
			c = ResourceChange{Impact: WillCreate, NewType: cur.Type}
		case !inDesired:
			c = ResourceChange{Impact: WillDestroy, OldType: old.Type}
			if old.DeletionPolicy == "Retain" || old.DeletionPolicy == "RetainExceptOnCreate" {
				c.Impact = WillOrphan
			}
		default:
			c = ResourceChange{Impact: resourceImpact(old, cur), OldType: old.Type, NewType: cur.Type}
		}

		d.Resources[id] = c
		if c.Impact != NoChange {
			d.DifferenceCount++
		}
	}

	d.DifferenceCount += sectionDifferences(actual.Parameters, desired.Parameters)
	d.DifferenceCount += sectionDifferences(actual.Mappings, desired.Mappings)
	d.DifferenceCount += sectionDifferences(actual.Conditions, desired.Conditions)
	d.DifferenceCount += sectionDifferences(actual.Outputs, desired.Outputs)
	if actual.Description != desired.Description {
		d.DifferenceCount++
	}

	return d
}

func resourceImpact(old, cur template.Resource) Impact {
	if old.Type != cur.Type {
		return WillReplace
	}

	// Metadata never reaches the deployed resource
	old.Metadata, cur.Metadata = nil, nil
	if cmp.Equal(old, cur, cmpopts.EquateEmpty()) {
		return NoChange
	}

	for _, key := range unionKeys(old.Properties, cur.Properties) {
		if !replacementProne[key] {
			continue
		}
		if !cmp.Equal(old.Properties[key], cur.Properties[key]) {
			return MayReplace
		}
	}
	return WillUpdate
}

func sectionDifferences(actual, desired map[string]interface{}) int {
	n := 0
	for _, key := range unionKeys(actual, desired) {
		a, inActual := actual[key]
		b, inDesired := desired[key]
		if inActual != inDesired || !cmp.Equal(a, b) {
			n++
		}
	}
	return n
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
