package cdk

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cdk-drift-report/pkg/stack"
)

// CDK is the main interface for CDK operations
type CDK struct {
	projectPath string
	synthesizer *Synthesizer
	log         logrus.FieldLogger
}

// New creates a new CDK instance for a project. outputDir is the cloud
// assembly directory, empty for the project's cdk.out.
func New(projectPath, outputDir string, log logrus.FieldLogger) *CDK {
	return &CDK{
		projectPath: projectPath,
		synthesizer: NewSynthesizer(projectPath, outputDir, log),
		log:         log,
	}
}

// DesiredStacks returns the stacks of the cloud assembly, synthesizing the
// app first when synth is set.
func (c *CDK) DesiredStacks(ctx context.Context, synth bool) ([]stack.DesiredStack, error) {
	if synth {
		if err := c.synthesizer.Synth(ctx); err != nil {
			return nil, err
		}
	}

	stacks, err := c.synthesizer.DesiredStacks()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load cloud assembly")
	}

	c.log.WithFields(logrus.Fields{
		"count":  len(stacks),
		"stacks": stack.Names(stacks),
	}).Info("Loaded desired stacks")
	return stacks, nil
}
