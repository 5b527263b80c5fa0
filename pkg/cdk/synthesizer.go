package cdk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cdk-drift-report/pkg/stack"
	"cdk-drift-report/pkg/template"
)

// Synthesizer handles CDK synthesis and reads the resulting cloud assembly
type Synthesizer struct {
	projectPath string
	outputDir   string
	log         logrus.FieldLogger
}

// NewSynthesizer creates a new CDK synthesizer. An empty outputDir means
// the default cdk.out inside the project.
func NewSynthesizer(projectPath, outputDir string, log logrus.FieldLogger) *Synthesizer {
	if outputDir == "" {
		outputDir = filepath.Join(projectPath, "cdk.out")
	}
	return &Synthesizer{
		projectPath: projectPath,
		outputDir:   outputDir,
		log:         log,
	}
}

// OutputDir returns the cloud assembly directory
func (s *Synthesizer) OutputDir() string {
	return s.outputDir
}

// DetectProjectType detects the CDK project type (typescript, python, go, java, csharp)
func (s *Synthesizer) DetectProjectType() (string, error) {
	markers := []struct {
		file        string
		projectType string
	}{
		{"package.json", "typescript"},
		{"requirements.txt", "python"},
		{"setup.py", "python"},
		{"go.mod", "go"},
		{"pom.xml", "java"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(s.projectPath, m.file)); err == nil {
			return m.projectType, nil
		}
	}

	files, _ := filepath.Glob(filepath.Join(s.projectPath, "*.csproj"))
	if len(files) > 0 {
		return "csharp", nil
	}

	return "", fmt.Errorf("unable to detect CDK project type")
}

// Synth runs the CDK app and writes the cloud assembly to the output directory
func (s *Synthesizer) Synth(ctx context.Context) error {
	cdkConfig, err := s.readCDKConfig()
	if err != nil {
		return err
	}

	appCmd := cdkConfig.App
	s.log.WithField("app", appCmd).Info("Synthesizing CDK app")

	if strings.TrimSpace(appCmd) == "" {
		return fmt.Errorf("empty app command in cdk.json")
	}

	env := os.Environ()
	env = append(env, fmt.Sprintf("CDK_OUTDIR=%s", s.outputDir))

	// Python apps run from the project's virtual environment when it has one
	if projectType, _ := s.DetectProjectType(); projectType == "python" {
		venv := filepath.Join(s.projectPath, ".venv")
		if _, err := os.Stat(venv); err == nil {
			venvPython := filepath.Join(venv, "bin", "python")
			if strings.HasPrefix(appCmd, "python3 ") {
				appCmd = venvPython + appCmd[7:]
			} else if strings.HasPrefix(appCmd, "python ") {
				appCmd = venvPython + appCmd[6:]
			}
			env = append(env,
				fmt.Sprintf("PATH=%s:%s", filepath.Join(venv, "bin"), os.Getenv("PATH")),
				fmt.Sprintf("VIRTUAL_ENV=%s", venv))
		}
	}

	cmd := exec.CommandContext(ctx, "npx", "cdk", "synth", "--quiet", "--app", appCmd, "--output", s.outputDir)
	cmd.Dir = s.projectPath
	cmd.Env = env
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "CDK synthesis failed")
	}
	return nil
}

// readCDKConfig reads and parses the cdk.json file
func (s *Synthesizer) readCDKConfig() (*CDKConfig, error) {
	configPath := filepath.Join(s.projectPath, "cdk.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cdk.json")
	}

	var config CDKConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to parse cdk.json")
	}

	return &config, nil
}

// DesiredStacks reads every stack of the cloud assembly. Stacks are ordered
// by artifact id, nested assemblies are expanded in place.
func (s *Synthesizer) DesiredStacks() ([]stack.DesiredStack, error) {
	manifestPath := filepath.Join(s.outputDir, "manifest.json")
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		s.log.WithField("dir", s.outputDir).Warn("No manifest.json found, falling back to template files")
		return s.globStacks()
	}

	stacks, err := s.assemblyStacks(s.outputDir)
	if err != nil {
		return nil, err
	}
	if len(stacks) == 0 {
		return nil, fmt.Errorf("no CloudFormation stacks found in %s", s.outputDir)
	}
	return stacks, nil
}

func (s *Synthesizer) assemblyStacks(dir string) ([]stack.DesiredStack, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cloud assembly manifest")
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest in %s", dir)
	}

	ids := make([]string, 0, len(manifest.Artifacts))
	for id := range manifest.Artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var stacks []stack.DesiredStack
	for _, id := range ids {
		artifact := manifest.Artifacts[id]
		switch artifact.Type {
		case StackArtifactType:
			name := artifact.Properties.StackName
			if name == "" {
				name = id
			}
			tmpl, err := readTemplate(filepath.Join(dir, artifact.Properties.TemplateFile))
			if err != nil {
				return nil, errors.Wrapf(err, "stack %s", name)
			}
			stacks = append(stacks, stack.DesiredStack{Name: name, Template: tmpl})

		case NestedAssemblyType:
			nested, err := s.assemblyStacks(filepath.Join(dir, artifact.Properties.DirectoryName))
			if err != nil {
				return nil, err
			}
			stacks = append(stacks, nested...)
		}
	}

	return stacks, nil
}

// globStacks finds stack templates by file name when there is no manifest
func (s *Synthesizer) globStacks() ([]stack.DesiredStack, error) {
	pattern := filepath.Join(s.outputDir, "*.template.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find templates")
	}

	var stacks []stack.DesiredStack
	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), ".template.json")
		tmpl, err := readTemplate(match)
		if err != nil {
			return nil, errors.Wrapf(err, "stack %s", name)
		}
		stacks = append(stacks, stack.DesiredStack{Name: name, Template: tmpl})
	}

	if len(stacks) == 0 {
		return nil, fmt.Errorf("no CloudFormation templates found in %s", s.outputDir)
	}
	return stacks, nil
}

func readTemplate(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read template")
	}
	return template.Parse(data)
}
