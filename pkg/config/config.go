package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTitle        = "CDK drift report"
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 300 * time.Second
)

// GitHub holds the settings for publishing the report as a pull request comment
type GitHub struct {
	Repository    string `yaml:"repository"`
	PullRequest   int    `yaml:"pullRequest"`
	Token         string `yaml:"-"`
	APIURL        string `yaml:"apiUrl"`
	DeleteOnClean bool   `yaml:"deleteOnClean"`
}

// Enabled reports whether a comment should be published
func (g GitHub) Enabled() bool {
	return g.Repository != "" && g.PullRequest > 0
}

// Config is the configuration of a single report run
type Config struct {
	Title          string        `yaml:"title"`
	Region         string        `yaml:"region"`
	DriftDetection bool          `yaml:"driftDetection"`
	SkipUnchanged  bool          `yaml:"skipUnchanged"`
	AppDir         string        `yaml:"appDir"`
	CloudAssembly  string        `yaml:"cloudAssembly"`
	Synth          bool          `yaml:"synth"`
	Repo           string        `yaml:"repo"`
	Output         string        `yaml:"output"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	PollTimeout    time.Duration `yaml:"pollTimeout"`
	GitHub         GitHub        `yaml:"github"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		Title:        DefaultTitle,
		AppDir:       ".",
		Output:       "-",
		PollInterval: DefaultPollInterval,
		PollTimeout:  DefaultPollTimeout,
		GitHub: GitHub{
			APIURL: "https://api.github.com",
		},
	}
}

// LoadFile overlays the YAML file at path onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// LoadEnv fills unset values from the environment
func (c *Config) LoadEnv(getenv func(string) string) {
	if c.Region == "" {
		c.Region = getenv("AWS_REGION")
	}
	if c.Region == "" {
		c.Region = getenv("AWS_DEFAULT_REGION")
	}
	if c.GitHub.Token == "" {
		c.GitHub.Token = getenv("GITHUB_TOKEN")
	}
	if c.GitHub.Repository == "" {
		c.GitHub.Repository = getenv("GITHUB_REPOSITORY")
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Title == "" {
		return errors.New("title must not be empty")
	}
	if c.PollInterval <= 0 || c.PollTimeout <= 0 {
		return errors.New("poll interval and timeout must be positive")
	}
	if c.PollInterval > c.PollTimeout {
		return errors.Errorf("poll interval %s is longer than poll timeout %s", c.PollInterval, c.PollTimeout)
	}
	if c.DriftDetection && c.Region == "" {
		return errors.New("drift detection needs a region to link to the CloudFormation console")
	}
	if c.GitHub.Enabled() && c.GitHub.Token == "" {
		return errors.New("publishing to GitHub needs a token (GITHUB_TOKEN)")
	}
	return nil
}

// ConsoleBase is the CloudFormation console URL for the configured region
func (c *Config) ConsoleBase() string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/cloudformation/home?region=%s#/stacks", c.Region, c.Region)
}
