package deploy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaydeck/deploykit/agent/pkg/manifest"
	"github.com/relaydeck/deploykit/agent/pkg/saga"
	"github.com/relaydeck/deploykit/common/filesystem"
	"github.com/relaydeck/deploykit/ctl/internal/cmdfmt"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/relaydeck/deploykit/ctl/pkg/ctl/deploy"
	"github.com/relaydeck/deploykit/ctl/pkg/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Creates new "deploy" command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Acquire a project, install its dependencies and optionally start it",
		Long: `Deploy runs the deployment steps for a project in order:

  acquire               clone, pull and run, install or copy the project to the target path
  install_dependencies  install the dependencies declared by the project (uv/pip or npm)
  start                 start the project with its compose file (only with --start)

The first failing step stops the deployment. Nothing is rolled back, so a project whose
dependencies failed to install is left at the target path for inspection. The target path must
not exist yet.`,
	}
	cmd.AddCommand(
		newGitCmd(),
		newImageCmd(),
		newPackageCmd(),
		newLocalCmd(),
		newManifestCmd(),
	)
	return cmd
}

// stepFlags are shared by all single source subcommands.
type stepFlags struct {
	start   bool
	project string
	timeout time.Duration
}

func (f *stepFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.start, "start", false, "Start the project with its compose file once dependencies are installed.")
	cmd.Flags().StringVar(&f.project, "project", "auto", "Only look for dependency files of this project type ('auto', 'python' or 'node').")
	cmd.Flags().DurationVar(&f.timeout, "install-timeout", 0, "Maximum time for installing dependencies (default 10m).")
}

func (f *stepFlags) config() (deploy.Config, error) {
	project, err := manifest.ProjectTypeFromString(f.project)
	if err != nil {
		return deploy.Config{}, err
	}
	return deploy.Config{
		StartAfterInstall: f.start,
		Install:           manifest.InstallOptions{Project: project, Timeout: f.timeout},
	}, nil
}

func runSingle(cmd *cobra.Command, flags *stepFlags, src manifest.Source, target string) error {
	cfg, err := flags.config()
	if err != nil {
		return err
	}
	if err := src.Validate(); err != nil {
		return err
	}
	result := deploy.Run(cmd.Context(), src, target, cfg)
	printResults([]deploy.DeploymentResult{{Deployment: target, Result: result}}, false)
	if !result.OverallSuccess {
		return deploymentError(result)
	}
	return nil
}

func deploymentError(result saga.Result) error {
	if step, ok := result.Failed(); ok {
		return fmt.Errorf("deployment failed at step %s: %s (%s)", step.Name, step.Outcome.Message, step.Outcome.ErrorKind)
	}
	return errors.New("deployment failed")
}

func newGitCmd() *cobra.Command {
	flags := &stepFlags{}
	src := manifest.GitSource{}
	cmd := &cobra.Command{
		Use:   "git <url> <target>",
		Short: "Deploy a project from a git repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src.URL = args[0]
			return runSingle(cmd, flags, manifest.FromGit(src), args[1])
		},
	}
	cmd.Flags().StringVarP(&src.Branch, "branch", "b", "", "Branch or tag to clone (default: the remote HEAD).")
	cmd.Flags().IntVar(&src.Depth, "depth", 0, "Create a shallow clone with this many commits.")
	flags.register(cmd)
	return cmd
}

func newImageCmd() *cobra.Command {
	flags := &stepFlags{}
	src := manifest.ImageSource{}
	var env, volumes []string
	cmd := &cobra.Command{
		Use:   "image <image> <target>",
		Short: "Pull an image and run it as a detached container",
		Long: `Pull an image and run it as a detached container. The target path only receives a
deployment record describing the container since images don't have a project tree.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src.Image = args[0]
			var err error
			if src.Env, err = parsePairs(env, "="); err != nil {
				return fmt.Errorf("invalid --env: %w", err)
			}
			if src.Volumes, err = parsePairs(volumes, ":"); err != nil {
				return fmt.Errorf("invalid --volume: %w", err)
			}
			return runSingle(cmd, flags, manifest.FromImage(src), args[1])
		},
	}
	cmd.Flags().StringVar(&src.ContainerName, "name", "", "Name of the container (required).")
	cmd.MarkFlagRequired("name")
	cmd.Flags().IntVarP(&src.Port, "port", "p", 0, "Publish this container port on the same host port.")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "Environment variable as KEY=VALUE (can be repeated, order is kept).")
	cmd.Flags().StringArrayVarP(&volumes, "volume", "v", nil, "Volume as HOST:CONTAINER (can be repeated, order is kept).")
	flags.register(cmd)
	return cmd
}

func parsePairs(values []string, sep string) (manifest.OrderedMap, error) {
	m := manifest.OrderedMap{}
	for _, v := range values {
		key, value, ok := strings.Cut(v, sep)
		if !ok || key == "" {
			return nil, fmt.Errorf("%q is not in the form KEY%sVALUE", v, sep)
		}
		m.Set(key, value)
	}
	return m, nil
}

func newPackageCmd() *cobra.Command {
	flags := &stepFlags{}
	src := manifest.PackageSource{}
	cmd := &cobra.Command{
		Use:   "package <pypi|npm> <package> <target>",
		Short: "Install a package from PyPI or npm",
		Long: `Install a package from PyPI or npm. PyPI packages are installed into a new virtual
environment under --install-target if it is set, npm packages are installed globally unless
--local is set. The target path only receives a deployment record.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if src.Ecosystem = manifest.EcosystemFromString(args[0]); src.Ecosystem == manifest.UnknownEcosystem {
				return fmt.Errorf("unsupported package ecosystem %q (supported: pypi, npm)", args[0])
			}
			src.Package = args[1]
			return runSingle(cmd, flags, manifest.FromPackage(src), args[2])
		},
	}
	cmd.Flags().StringVar(&src.InstallTarget, "install-target", "", "Directory for the virtual environment (pypi) or local install (npm).")
	cmd.Flags().BoolVar(&src.Local, "local", false, "Install an npm package into --install-target instead of globally.")
	flags.register(cmd)
	return cmd
}

func newLocalCmd() *cobra.Command {
	flags := &stepFlags{}
	src := manifest.LocalSource{}
	var symlink bool
	cmd := &cobra.Command{
		Use:   "local <path> <target>",
		Short: "Deploy a project from a local directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src.Path = args[0]
			if symlink {
				src.LinkMode = manifest.SymLink
			}
			return runSingle(cmd, flags, manifest.FromLocal(src), args[1])
		},
	}
	cmd.Flags().BoolVar(&symlink, "symlink", false, "Link the target to the source directory instead of copying it.")
	cmd.Flags().StringSliceVar(&src.Exclude, "exclude", nil, "Glob patterns (doublestar syntax) of paths that are not copied, relative to the source directory.")
	cmd.Flags().StringVar(&src.Filter, "filter", "", filesystem.FilterFilesHelp)
	flags.register(cmd)
	return cmd
}

func newManifestCmd() *cobra.Command {
	cfg := deploy.BatchConfig{}
	var recurse bool
	var delimiter string
	cmd := &cobra.Command{
		Use:   "manifest <path> [<path>...]",
		Short: "Deploy every deployment listed in one or more manifest files",
		Long: fmt.Sprintf(`Deploy every deployment listed in one or more manifest files.

Manifests are processed in parallel (see --%s), deployments within a manifest are run in the
order they are listed. Specify "-" to read manifest paths from stdin, or a single directory with
--recurse to use every .yaml/.yml file below it.

Example manifest:

  deployments:
    - name: web
      target: /srv/web
      start: true
      source:
        type: git
        git:
          url: https://github.com/example/web.git
          branch: main
    - target: /srv/cache
      source:
        type: image
        image:
          image: redis:7
          container-name: cache
          port: 6379`, config.NumWorkersKey),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := util.DeterminePathInputMethod(args, recurse, delimiter)
			if err != nil {
				return err
			}
			return runManifestCmd(cmd, method, cfg)
		},
	}
	cmd.Flags().BoolVarP(&recurse, "recurse", "r", false, "Deploy every manifest below the provided directory.")
	cmd.Flags().StringVar(&delimiter, "stdin-delimiter", "\\n", "Delimiter used when reading manifest paths from stdin.")
	cmd.Flags().StringVar(&cfg.Filter, "filter", "", "Only use manifest files matching this expression. "+filesystem.FilterFilesHelp)
	cmd.Flags().StringVar(&cfg.MetricsFile, "metrics-file", "", "Write deployment metrics to this file in the Prometheus text format (for the node exporter textfile collector).")
	cmd.Flags().BoolVar(&cfg.Sequential, "sequential", false, "Process one manifest at a time in the order provided.")
	return cmd
}

func runManifestCmd(cmd *cobra.Command, method util.PathInputMethod, cfg deploy.BatchConfig) error {
	results, wait := deploy.RunManifests(cmd.Context(), method, cfg)
	var all []deploy.DeploymentResult
	for r := range results {
		all = append(all, r...)
	}
	if err := wait(); err != nil {
		return err
	}
	printResults(all, true)

	failed := 0
	for _, r := range all {
		if r.Err != nil || !r.Result.OverallSuccess {
			failed++
		}
	}
	if failed > 0 {
		return util.NewCtlError(fmt.Errorf("%d of %d deployments failed", failed, len(all)), util.PartialSuccess)
	}
	return nil
}

func printResults(results []deploy.DeploymentResult, withManifest bool) {
	allColumns := []string{"manifest", "deployment", "step", "status", "error kind", "exit code", "duration", "message", "stdout", "stderr", "run id"}
	defaultColumns := []string{"deployment", "step", "status", "duration", "message"}
	if withManifest {
		defaultColumns = append([]string{"manifest"}, defaultColumns...)
	}
	if viper.GetBool(config.DebugKey) {
		defaultColumns = append(defaultColumns, "error kind", "exit code", "stdout", "stderr", "run id")
	}
	tbl := cmdfmt.NewPrintomatic(allColumns, defaultColumns)
	defer tbl.PrintRemaining()

	for _, r := range results {
		if r.Err != nil {
			tbl.AddItem(r.Manifest, "", "", "invalid", "", "", "", r.Err.Error(), "", "", "")
			continue
		}
		for _, step := range r.Result.Steps {
			o := step.Outcome
			duration := "-"
			if step.Status != saga.Skipped {
				duration = formatDuration(step.Duration)
			}
			tbl.AddItem(r.Manifest, r.Deployment, string(step.Name), step.Status.String(), o.ErrorKind.String(), o.ExitCode,
				duration, o.Message, strings.TrimSpace(o.Stdout), strings.TrimSpace(o.Stderr), r.Result.RunID)
		}
	}
}

func formatDuration(d time.Duration) string {
	if viper.GetBool(config.RawKey) {
		return fmt.Sprintf("%d", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}
