package report

import (
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdk-drift-report/pkg/config"
	"cdk-drift-report/pkg/diff"
	"cdk-drift-report/pkg/stack"
	"cdk-drift-report/pkg/template"
)

const stackIDB = "arn:aws:cloudformation:eu-west-1:123456789012:stack/B/abc"

func testConfig(drift bool) *config.Config {
	cfg := config.Default()
	cfg.Title = "Drift"
	cfg.Region = "eu-west-1"
	cfg.DriftDetection = drift
	return cfg
}

func tmpl(types map[string]string) *template.Template {
	t := &template.Template{Resources: make(map[string]template.Resource)}
	for id, typ := range types {
		t.Resources[id] = template.Resource{Type: typ}
	}
	return t
}

func TestReconcileNewStack(t *testing.T) {
	desired := tmpl(map[string]string{"R1": "T1", "R2": "T2", "CDKMetadata": template.MetadataType})
	in := Input{
		Desired: []stack.DesiredStack{{Name: "A", Template: desired}},
		Diffs:   map[string]*diff.TemplateDiff{"A": diff.Templates(nil, desired)},
	}

	r, err := Reconcile(testConfig(true), in)
	require.NoError(t, err)

	require.Len(t, r.Stacks, 1)
	a := r.Stacks[0]
	assert.Equal(t, New, a.Classification)
	assert.Nil(t, a.Diff)
	assert.False(t, a.DriftedOverall)
	assert.Equal(t, []ResourceRow{
		{LogicalID: "R1", ResourceType: "T1", DiffLabel: LabelCreate},
		{LogicalID: "R2", ResourceType: "T2", DiffLabel: LabelCreate},
	}, a.Rows)
	assert.Equal(t, 1, r.EditedCount)
}

func TestReconcileReplacedAndDrifted(t *testing.T) {
	in := Input{
		Desired:  []stack.DesiredStack{{Name: "B", Template: tmpl(map[string]string{"R1": "T1b"})}},
		Deployed: []stack.DeployedStack{{Name: "B", ID: stackIDB, Status: "UPDATE_COMPLETE"}},
		Diffs: map[string]*diff.TemplateDiff{"B": {
			DifferenceCount: 1,
			Resources: map[string]diff.ResourceChange{
				"R1": {Impact: diff.WillReplace, OldType: "T1", NewType: "T1b"},
			},
		}},
		Resources: map[string]stack.Resources{"B": {
			"R1": {LogicalID: "R1", ResourceType: "T1", DriftStatus: stack.DriftModified},
		}},
	}

	r, err := Reconcile(testConfig(true), in)
	require.NoError(t, err)

	b := r.Stacks[0]
	assert.Equal(t, Changed, b.Classification)
	assert.True(t, b.DriftedOverall)
	assert.True(t, r.Drifted)
	require.Len(t, b.Rows, 1)

	row := b.Rows[0]
	assert.Equal(t, "T1b", row.ResourceType)
	assert.Equal(t, LabelReplace, row.DiffLabel)
	assert.Equal(t, DriftAlert, row.DriftLabel)
	assert.Contains(t, row.DriftLink, "https://eu-west-1.console.aws.amazon.com/cloudformation/home?region=eu-west-1#/stacks/drifts/info?")
	assert.Contains(t, row.DriftLink, "stackId="+url.QueryEscape(stackIDB))
	assert.Contains(t, row.DriftLink, "logicalResourceId=R1")
}

func TestReconcileUnchangedInSync(t *testing.T) {
	in := Input{
		Desired:  []stack.DesiredStack{{Name: "C", Template: tmpl(map[string]string{"R1": "T1", "R2": "T2"})}},
		Deployed: []stack.DeployedStack{{Name: "C", ID: "id-C"}},
		Diffs:    map[string]*diff.TemplateDiff{"C": {Resources: map[string]diff.ResourceChange{}}},
		Resources: map[string]stack.Resources{"C": {
			"R1": {LogicalID: "R1", ResourceType: "T1", DriftStatus: stack.DriftInSync},
			"R2": {LogicalID: "R2", ResourceType: "T2", DriftStatus: stack.DriftInSync},
		}},
	}

	r, err := Reconcile(testConfig(true), in)
	require.NoError(t, err)

	require.Len(t, r.Stacks, 1)
	c := r.Stacks[0]
	assert.Equal(t, Unchanged, c.Classification)
	assert.False(t, c.DriftedOverall)
	assert.False(t, r.Drifted)
	assert.Equal(t, 0, r.EditedCount)
	for _, row := range c.Rows {
		assert.Equal(t, DriftSuccess, row.DriftLabel)
		assert.Empty(t, row.DriftLink)
		assert.Equal(t, LabelNone, row.DiffLabel)
	}
}

func TestReconcileSkipUnchanged(t *testing.T) {
	unchanged := &diff.TemplateDiff{Resources: map[string]diff.ResourceChange{}}
	in := Input{
		Desired: []stack.DesiredStack{
			{Name: "Quiet", Template: tmpl(map[string]string{"R1": "T1"})},
			{Name: "Drifted", Template: tmpl(map[string]string{"R1": "T1"})},
			{Name: "Empty", Template: template.Empty()},
		},
		Deployed: []stack.DeployedStack{{Name: "Quiet", ID: "q"}, {Name: "Drifted", ID: "d"}, {Name: "Empty", ID: "e"}},
		Diffs:    map[string]*diff.TemplateDiff{"Quiet": unchanged, "Drifted": unchanged, "Empty": unchanged},
		Resources: map[string]stack.Resources{
			"Quiet":   {"R1": {LogicalID: "R1", ResourceType: "T1", DriftStatus: stack.DriftInSync}},
			"Drifted": {"R1": {LogicalID: "R1", ResourceType: "T1", DriftStatus: stack.DriftModified}},
		},
	}

	cfg := testConfig(true)
	r, err := Reconcile(cfg, in)
	require.NoError(t, err)
	require.Len(t, r.Stacks, 3, "every stack is reported by default")
	assert.Empty(t, r.Stacks[2].Rows)
	assert.NotNil(t, r.Stacks[2].Rows)

	cfg.SkipUnchanged = true
	r, err = Reconcile(cfg, in)
	require.NoError(t, err)
	require.Len(t, r.Stacks, 2, "only stacks with nothing to show are skipped")
	assert.Equal(t, "Quiet", r.Stacks[0].Name)
	assert.Equal(t, "Drifted", r.Stacks[1].Name)
	assert.Equal(t, Unchanged, r.Stacks[1].Classification)
	assert.True(t, r.Stacks[1].DriftedOverall)
}

func TestReconcileEditedCountFollowsDiff(t *testing.T) {
	outputsOnly := &template.Template{
		Resources: map[string]template.Resource{},
		Outputs:   map[string]interface{}{"Url": "https://example.com"},
	}
	in := Input{
		Desired: []stack.DesiredStack{
			{Name: "OutputsOnly", Template: outputsOnly},
			{Name: "Empty", Template: template.Empty()},
		},
		Diffs: map[string]*diff.TemplateDiff{
			"OutputsOnly": diff.Templates(nil, outputsOnly),
			"Empty":       diff.Templates(nil, template.Empty()),
		},
	}

	r, err := Reconcile(testConfig(false), in)
	require.NoError(t, err)
	require.Len(t, r.Stacks, 2)
	assert.Equal(t, New, r.Stacks[0].Classification)
	assert.Empty(t, r.Stacks[0].Rows)
	assert.Equal(t, 1, r.EditedCount)
}

func TestReconcileRemovedResourceAndMetadata(t *testing.T) {
	in := Input{
		Desired:  []stack.DesiredStack{{Name: "S", Template: tmpl(map[string]string{"Kept": "T1"})}},
		Deployed: []stack.DeployedStack{{Name: "S", ID: "id-S"}},
		Diffs: map[string]*diff.TemplateDiff{"S": {
			DifferenceCount: 2,
			Resources: map[string]diff.ResourceChange{
				"Kept":     {Impact: diff.NoChange, OldType: "T1", NewType: "T1"},
				"Gone":     {Impact: diff.WillOrphan, OldType: "T2"},
				"Metadata": {Impact: diff.WillUpdate, OldType: template.MetadataType, NewType: template.MetadataType},
			},
		}},
		Resources: map[string]stack.Resources{"S": {
			"Kept":     {LogicalID: "Kept", ResourceType: "T1", DriftStatus: stack.DriftNotChecked},
			"Gone":     {LogicalID: "Gone", ResourceType: "T2", DriftStatus: stack.DriftModified},
			"Manual":   {LogicalID: "Manual", ResourceType: "T3"},
			"Metadata": {LogicalID: "Metadata", ResourceType: template.MetadataType, DriftStatus: stack.DriftModified},
			"OldMeta":  {LogicalID: "OldMeta", ResourceType: template.MetadataType},
		}},
	}

	r, err := Reconcile(testConfig(true), in)
	require.NoError(t, err)

	rows := r.Stacks[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "Gone", rows[0].LogicalID)
	assert.Equal(t, LabelRemove, rows[0].DiffLabel)
	assert.Equal(t, DriftAlert, rows[0].DriftLabel)
	assert.Equal(t, "Kept", rows[1].LogicalID)
	assert.Equal(t, DriftWarning, rows[1].DriftLabel)
	assert.Empty(t, rows[1].DriftLink)
	assert.Equal(t, "Manual", rows[2].LogicalID)
	assert.Equal(t, "T3", rows[2].ResourceType)
	assert.Equal(t, LabelNone, rows[2].DiffLabel)
	assert.Equal(t, DriftNone, rows[2].DriftLabel)
}

func TestReconcileDriftDisabled(t *testing.T) {
	in := Input{
		Desired:  []stack.DesiredStack{{Name: "B", Template: tmpl(map[string]string{"R1": "T1"})}},
		Deployed: []stack.DeployedStack{{Name: "B", ID: stackIDB}},
		Diffs:    map[string]*diff.TemplateDiff{"B": {Resources: map[string]diff.ResourceChange{}}},
		Resources: map[string]stack.Resources{"B": {
			"R1": {LogicalID: "R1", ResourceType: "T1", DriftStatus: stack.DriftModified},
		}},
		Drifted: true,
	}

	r, err := Reconcile(testConfig(false), in)
	require.NoError(t, err)

	assert.False(t, r.Drifted)
	assert.False(t, r.Stacks[0].DriftedOverall)
	for _, row := range r.Stacks[0].Rows {
		assert.Equal(t, DriftNone, row.DriftLabel)
		assert.Empty(t, row.DriftLink)
	}
}

func TestReconcileKeepsDesiredOrder(t *testing.T) {
	in := Input{
		Desired: []stack.DesiredStack{
			{Name: "Zeta", Template: template.Empty()},
			{Name: "Alpha", Template: template.Empty()},
		},
	}

	r, err := Reconcile(testConfig(false), in)
	require.NoError(t, err)
	require.Len(t, r.Stacks, 2)
	assert.Equal(t, "Zeta", r.Stacks[0].Name)
	assert.Equal(t, "Alpha", r.Stacks[1].Name)
	assert.Equal(t, 0, r.EditedCount)
}

func TestReconcileDataInconsistency(t *testing.T) {
	t.Run("diff without template", func(t *testing.T) {
		_, err := Reconcile(testConfig(false), Input{
			Diffs: map[string]*diff.TemplateDiff{"Ghost": {}},
		})
		var de *DataInconsistencyError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "Ghost", de.Stack)
	})

	t.Run("deployed stack without diff", func(t *testing.T) {
		_, err := Reconcile(testConfig(false), Input{
			Desired:  []stack.DesiredStack{{Name: "B", Template: template.Empty()}},
			Deployed: []stack.DeployedStack{{Name: "B", ID: "id"}},
		})
		var de *DataInconsistencyError
		require.True(t, errors.As(err, &de))
		assert.Contains(t, err.Error(), "B")
	})
}

func TestDiffLabelFor(t *testing.T) {
	assert.Equal(t, LabelUpdate, DiffLabelFor(diff.WillUpdate))
	assert.Equal(t, LabelCreate, DiffLabelFor(diff.WillCreate))
	assert.Equal(t, LabelReplace, DiffLabelFor(diff.WillReplace))
	assert.Equal(t, LabelMayReplace, DiffLabelFor(diff.MayReplace))
	assert.Equal(t, LabelDestroy, DiffLabelFor(diff.WillDestroy))
	assert.Equal(t, LabelRemove, DiffLabelFor(diff.WillOrphan))
	assert.Equal(t, LabelNone, DiffLabelFor(diff.NoChange))
	assert.Panics(t, func() { DiffLabelFor(diff.Impact(99)) })
}

func TestDriftLabelFor(t *testing.T) {
	assert.Equal(t, DriftWarning, DriftLabelFor(stack.DriftNotChecked))
	assert.Equal(t, DriftAlert, DriftLabelFor(stack.DriftModified))
	assert.Equal(t, DriftSuccess, DriftLabelFor(stack.DriftInSync))
	assert.Equal(t, DriftNone, DriftLabelFor(stack.DriftDeleted))
	assert.Equal(t, DriftNone, DriftLabelFor(stack.DriftUnknown))
}
