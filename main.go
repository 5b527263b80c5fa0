package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cdk-drift-report/pkg/cdk"
	"cdk-drift-report/pkg/cfn"
	"cdk-drift-report/pkg/config"
	"cdk-drift-report/pkg/diff"
	"cdk-drift-report/pkg/git"
	"cdk-drift-report/pkg/github"
	"cdk-drift-report/pkg/report"
	"cdk-drift-report/pkg/stack"
	"cdk-drift-report/pkg/template"
)

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, cleaning up...")
		cancel()
	}()

	if err := newRootCommand(os.Getenv).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	cfg := config.Default()
	var configFile, logLevel string

	cmd := &cobra.Command{
		Use:   "cdk-drift-report",
		Short: "Report template changes and drift of CDK stacks against their deployed state",
		Example: `  cdk-drift-report --region eu-west-1 --drift
  cdk-drift-report --app-dir infra --synth --github-pr 42 --title "Infra changes"
  cdk-drift-report --repo https://github.com/user/cdk-project.git --synth --output report.md`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd.Flags(), cfg, configFile, getenv); err != nil {
				return err
			}

			log := logrus.New()
			log.SetOutput(os.Stderr)
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return errors.Wrap(err, "invalid log level")
			}
			log.SetLevel(level)

			return run(cmd.Context(), cfg, getenv, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML config file")
	f.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&cfg.Title, "title", cfg.Title, "report title, also identifies the comment to replace")
	f.StringVar(&cfg.Region, "region", cfg.Region, "AWS region of the stacks (default $AWS_REGION)")
	f.BoolVar(&cfg.DriftDetection, "drift", cfg.DriftDetection, "run drift detection on deployed stacks")
	f.BoolVar(&cfg.SkipUnchanged, "skip-unchanged", cfg.SkipUnchanged, "omit unchanged stacks that have no resources to show")
	f.StringVar(&cfg.AppDir, "app-dir", cfg.AppDir, "CDK project directory")
	f.StringVar(&cfg.CloudAssembly, "cloud-assembly", cfg.CloudAssembly, "cloud assembly directory (default <app-dir>/cdk.out)")
	f.BoolVar(&cfg.Synth, "synth", cfg.Synth, "run cdk synth before reading the cloud assembly")
	f.StringVar(&cfg.Repo, "repo", cfg.Repo, "git repository to clone the CDK project from")
	f.StringVar(&cfg.Output, "output", cfg.Output, "file to write the report to, - for stdout")
	f.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "drift detection status poll interval")
	f.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "deadline for drift detection across all stacks")
	f.StringVar(&cfg.GitHub.Repository, "github-repo", cfg.GitHub.Repository, "owner/name of the repository to comment on (default $GITHUB_REPOSITORY)")
	f.IntVar(&cfg.GitHub.PullRequest, "github-pr", cfg.GitHub.PullRequest, "pull request number to comment on")
	f.StringVar(&cfg.GitHub.APIURL, "github-api-url", cfg.GitHub.APIURL, "GitHub API base URL")
	f.BoolVar(&cfg.GitHub.DeleteOnClean, "delete-on-clean", cfg.GitHub.DeleteOnClean, "delete the comment when nothing changed or drifted")

	return cmd
}

// loadConfig overlays the config file and the environment on the defaults
// while keeping every flag given on the command line.
func loadConfig(flags *pflag.FlagSet, cfg *config.Config, configFile string, getenv func(string) string) error {
	if configFile != "" {
		changed := make(map[string]string)
		flags.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})

		if err := cfg.LoadFile(configFile); err != nil {
			return err
		}
		for name, value := range changed {
			if err := flags.Set(name, value); err != nil {
				return errors.Wrapf(err, "flag --%s", name)
			}
		}
	}

	cfg.LoadEnv(getenv)
	return cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, getenv func(string) string, log *logrus.Logger) error {
	projectPath := cfg.AppDir
	if cfg.Repo != "" {
		clonePath, err := git.CloneRepository(ctx, cfg.Repo, "", log)
		if err != nil {
			return err
		}
		defer func() {
			if err := git.CleanupRepository(filepath.Dir(clonePath)); err != nil {
				log.WithError(err).Warn("Failed to clean up cloned repository")
			}
		}()
		projectPath = filepath.Join(clonePath, cfg.AppDir)
	}

	commit, err := git.HeadCommit(projectPath)
	if err != nil {
		log.WithError(err).Warn("Could not determine the current commit")
	}

	desired, err := cdk.New(projectPath, cfg.CloudAssembly, log).DesiredStacks(ctx, cfg.Synth)
	if err != nil {
		return err
	}

	client, err := cfn.NewClient(ctx, cfg.Region, log)
	if err != nil {
		return err
	}

	deployed, err := client.DeployedStacks(ctx, stack.Names(desired))
	if err != nil {
		return err
	}

	diffs, err := templateDiffs(ctx, client, desired, deployed)
	if err != nil {
		return err
	}

	// detection updates the drift status that CollectResources reads
	var drifted bool
	if cfg.DriftDetection {
		names := make([]string, 0, len(deployed))
		for _, s := range deployed {
			names = append(names, s.Name)
		}
		poller := client.NewPoller(clock.NewClock(), cfg.PollInterval, cfg.PollTimeout)
		outcome, err := poller.Detect(ctx, names)
		if err != nil {
			return err
		}
		drifted = outcome.Drifted
	}

	resources, err := client.CollectResources(ctx, deployed)
	if err != nil {
		return err
	}

	rep, err := report.Reconcile(cfg, report.Input{
		Desired:   desired,
		Deployed:  deployed,
		Diffs:     diffs,
		Resources: resources,
		Drifted:   drifted,
		Commit:    commit,
	})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"edited":  rep.EditedCount,
		"drifted": rep.Drifted,
	}).Info("Report ready")

	return emit(ctx, cfg, rep, getenv, log)
}

// emit publishes the report and writes the local outputs. The report itself
// is written last so that a failed publish leaves no output behind.
func emit(ctx context.Context, cfg *config.Config, rep *report.Report, getenv func(string) string, log logrus.FieldLogger) error {
	body := report.Render(rep)
	if err := publish(ctx, cfg, rep, body, log); err != nil {
		return err
	}
	if err := writeActionOutputs(getenv("GITHUB_OUTPUT"), rep); err != nil {
		return err
	}
	return writeReport(cfg.Output, body)
}

// templateDiffs diffs every desired stack against its deployed template, or
// against an empty template when the stack is not deployed.
func templateDiffs(ctx context.Context, client *cfn.Client, desired []stack.DesiredStack, deployed []stack.DeployedStack) (map[string]*diff.TemplateDiff, error) {
	index := stack.Index(deployed)
	diffs := make(map[string]*diff.TemplateDiff, len(desired))

	for _, ds := range desired {
		actual := template.Empty()
		if _, ok := index[ds.Name]; ok {
			var err error
			actual, err = client.DeployedTemplate(ctx, ds.Name)
			if err != nil {
				return nil, err
			}
		}
		diffs[ds.Name] = diff.Templates(actual, ds.Template)
	}
	return diffs, nil
}

func writeReport(output, body string) error {
	if output == "" || output == "-" {
		_, err := fmt.Fprint(os.Stdout, body)
		return err
	}
	if err := os.WriteFile(output, []byte(body), 0o644); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	return nil
}

func publish(ctx context.Context, cfg *config.Config, rep *report.Report, body string, log logrus.FieldLogger) error {
	if !cfg.GitHub.Enabled() {
		return nil
	}

	gh, err := github.NewClient(cfg.GitHub, nil, log)
	if err != nil {
		return err
	}
	marker := report.Marker(cfg.Title)
	if cfg.GitHub.DeleteOnClean && rep.EditedCount == 0 && !rep.Drifted {
		return errors.Wrap(gh.Delete(ctx, cfg.GitHub.PullRequest, marker), "failed to delete report comment")
	}
	return errors.Wrap(gh.Upsert(ctx, cfg.GitHub.PullRequest, marker, body), "failed to publish report comment")
}

// writeActionOutputs appends the run's results to a GitHub Actions output file
func writeActionOutputs(path string, rep *report.Report) error {
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to open GITHUB_OUTPUT")
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "edited-stacks=%d\ndrift-detected=%t\n", rep.EditedCount, rep.Drifted)
	return errors.Wrap(err, "failed to write GITHUB_OUTPUT")
}
