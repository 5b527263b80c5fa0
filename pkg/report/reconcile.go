package report

import (
	"fmt"
	"net/url"
	"sort"

	"cdk-drift-report/pkg/config"
	"cdk-drift-report/pkg/diff"
	"cdk-drift-report/pkg/stack"
	"cdk-drift-report/pkg/template"
)

// DataInconsistencyError means the template diffs do not line up with the
// desired stacks they were computed from.
type DataInconsistencyError struct {
	Stack  string
	Reason string
}

func (e *DataInconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent data for stack %s: %s", e.Stack, e.Reason)
}

// Input is the fetched state a report is built from
type Input struct {
	Desired  []stack.DesiredStack
	Deployed []stack.DeployedStack

	// Diffs holds one template diff per desired stack; new stacks may be absent
	Diffs     map[string]*diff.TemplateDiff
	Resources map[string]stack.Resources

	// Drifted is the outcome of drift detection across all stacks
	Drifted bool
	Commit  string
}

// Reconcile merges desired stacks, deployed stacks, template diffs and
// resource drift into one report. Stacks keep the order of in.Desired.
// EditedCount counts the stacks whose diff has differences.
func Reconcile(cfg *config.Config, in Input) (*Report, error) {
	desired := make(map[string]bool, len(in.Desired))
	for _, s := range in.Desired {
		desired[s.Name] = true
	}
	for name := range in.Diffs {
		if !desired[name] {
			return nil, &DataInconsistencyError{Stack: name, Reason: "diffed stack has no template"}
		}
	}

	deployed := stack.Index(in.Deployed)
	r := &Report{
		Title:          cfg.Title,
		Commit:         in.Commit,
		DriftDetection: cfg.DriftDetection,
		Drifted:        cfg.DriftDetection && in.Drifted,
	}

	for _, ds := range in.Desired {
		d, hasDiff := in.Diffs[ds.Name]
		dep, exists := deployed[ds.Name]

		var sr StackReport
		if !exists {
			sr = newStackReport(ds, d)
		} else {
			if !hasDiff {
				return nil, &DataInconsistencyError{Stack: ds.Name, Reason: "deployed stack has no template diff"}
			}
			sr = existingStackReport(cfg, ds, dep, d, in.Resources[ds.Name])
		}

		if !d.IsEmpty() {
			r.EditedCount++
		}
		if sr.DriftedOverall {
			r.Drifted = true
		}
		if cfg.SkipUnchanged && sr.Classification == Unchanged && !sr.DriftedOverall && len(sr.Rows) == 0 {
			continue
		}
		r.Stacks = append(r.Stacks, sr)
	}

	return r, nil
}

func newStackReport(ds stack.DesiredStack, d *diff.TemplateDiff) StackReport {
	sr := StackReport{Name: ds.Name, Classification: New, Rows: []ResourceRow{}}

	for _, id := range ds.Template.LogicalIDs() {
		typ := resourceType(id, d, ds.Template, nil)
		if typ == template.MetadataType {
			continue
		}
		sr.Rows = append(sr.Rows, ResourceRow{
			LogicalID:    id,
			ResourceType: typ,
			DiffLabel:    LabelCreate,
		})
	}
	return sr
}

func existingStackReport(cfg *config.Config, ds stack.DesiredStack, dep stack.DeployedStack, d *diff.TemplateDiff, resources stack.Resources) StackReport {
	sr := StackReport{
		Name:           ds.Name,
		StackID:        dep.ID,
		Classification: Unchanged,
		Diff:           d,
		Rows:           []ResourceRow{},
	}
	if !d.IsEmpty() {
		sr.Classification = Changed
	}

	ids := make(map[string]bool, len(resources))
	for id := range resources {
		ids[id] = true
	}
	if d != nil {
		for id, c := range d.Resources {
			if c.Impact != diff.NoChange {
				ids[id] = true
			}
		}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		typ := resourceType(id, d, ds.Template, resources)
		if typ == template.MetadataType {
			continue
		}

		row := ResourceRow{LogicalID: id, ResourceType: typ}
		if c, ok := d.Change(id); ok {
			row.DiffLabel = DiffLabelFor(c.Impact)
		}
		if cfg.DriftDetection {
			row.DriftStatus = resources[id].DriftStatus
			row.DriftLabel = DriftLabelFor(row.DriftStatus)
			if row.DriftStatus == stack.DriftModified {
				row.DriftLink = driftLink(cfg.ConsoleBase(), dep.ID, id)
				sr.DriftedOverall = true
			}
		}
		sr.Rows = append(sr.Rows, row)
	}
	return sr
}

// resourceType prefers the type the diff will leave behind, then the type
// being replaced, then what the templates or the deployed stack declare.
func resourceType(id string, d *diff.TemplateDiff, tmpl *template.Template, resources stack.Resources) string {
	if c, ok := d.Change(id); ok {
		if c.NewType != "" {
			return c.NewType
		}
		if c.OldType != "" {
			return c.OldType
		}
	}
	if t := tmpl.ResourceType(id); t != "" {
		return t
	}
	return resources[id].ResourceType
}

func driftLink(consoleBase, stackID, logicalID string) string {
	return fmt.Sprintf("%s/drifts/info?stackId=%s&logicalResourceId=%s",
		consoleBase, url.QueryEscape(stackID), url.QueryEscape(logicalID))
}
