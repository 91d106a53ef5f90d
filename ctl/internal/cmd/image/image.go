package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/registry"
	"github.com/relaydeck/deploykit/ctl/internal/cmdfmt"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Creates new "image" command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Build, publish and manage local images",
	}
	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newBuildCmd(),
		newTagCmd(),
		newPushCmd(),
		newListCmd(),
		newRemoveCmd(),
	)
	return cmd
}

func client() *registry.Client {
	log, _ := config.GetLogger()
	return registry.New(config.Runner(), registry.WithLogger(log))
}

type loginCfg struct {
	user          string
	passwordStdin bool
}

func (c *loginCfg) registerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.user, "username", "u", "", "Registry user name.")
	cmd.Flags().BoolVar(&c.passwordStdin, "password-stdin", false, "Read the password from stdin instead of prompting for it.")
}

func (c *loginCfg) password() ([]byte, error) {
	if c.passwordStdin {
		password, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read password from stdin: %w", err)
		}
		return bytes.TrimRight(password, "\r\n"), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal, use --password-stdin to provide the password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("unable to read password: %w", err)
	}
	return password, nil
}

func newLoginCmd() *cobra.Command {
	cfg := &loginCfg{}
	cmd := &cobra.Command{
		Use:   "login [<registry>]",
		Short: "Log in to a registry (Docker Hub if none is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := ""
			if len(args) == 1 {
				reg = args[0]
			}
			password, err := cfg.password()
			if err != nil {
				return err
			}
			return cmdfmt.PrintOutcome(client().Login(cmd.Context(), reg, cfg.user, password))
		},
	}
	cfg.registerFlags(cmd)
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout [<registry>]",
		Short: "Log out from a registry (Docker Hub if none is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := ""
			if len(args) == 1 {
				reg = args[0]
			}
			return cmdfmt.PrintOutcome(client().Logout(cmd.Context(), reg))
		},
	}
}

func newBuildCmd() *cobra.Command {
	spec := registry.BuildSpec{}
	var push bool
	var registryHost string
	login := &loginCfg{}
	cmd := &cobra.Command{
		Use:   "build <context>",
		Short: "Build an image from a Dockerfile",
		Long: `Build an image from a Dockerfile. Multi-platform builds (--platform) require docker buildx.

With --push every tag is pushed after a successful build. Multi-platform builds are pushed by
buildx itself since they are not loaded into the local image store. If --username is set the
registry login happens before the build.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.ContextDir = args[0]
			spec.Push = push
			c := client()
			if push && login.user != "" {
				password, err := login.password()
				if err != nil {
					return err
				}
				if err := cmdfmt.PrintOutcome(c.EnsureLogin(cmd.Context(), registryHost, login.user, password)); err != nil {
					return err
				}
			}
			if err := cmdfmt.PrintOutcome(c.Build(cmd.Context(), spec)); err != nil || !push || spec.PushesOnBuild() {
				return err
			}
			for _, tag := range spec.Tags {
				if err := cmdfmt.PrintOutcome(c.Push(cmd.Context(), tag)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&spec.Tags, "tag", "t", nil, "Name and optionally a tag in the name:tag format (can be repeated).")
	cmd.Flags().StringVarP(&spec.Dockerfile, "file", "f", "", "Dockerfile relative to the build context (default: Dockerfile).")
	cmd.Flags().StringArrayVar(&spec.BuildArgs, "build-arg", nil, "Build time variable as KEY=VALUE (can be repeated).")
	cmd.Flags().StringSliceVar(&spec.Platforms, "platform", nil, "Target platforms, for example linux/amd64,linux/arm64.")
	cmd.Flags().BoolVar(&spec.NoCache, "no-cache", false, "Do not use the build cache.")
	cmd.Flags().BoolVar(&push, "push", false, "Push all tags after the build.")
	cmd.Flags().StringVar(&registryHost, "registry", "", "Registry to log in to before pushing (default: Docker Hub).")
	login.registerFlags(cmd)
	return cmd
}

func newTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <source> <target>",
		Short: "Create a tag that refers to an existing image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Tag(cmd.Context(), args[0], args[1]))
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <image> [<image>...]",
		Short: "Push one or more images to their registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			var errs []error
			for _, image := range args {
				errs = append(errs, cmdfmt.PrintOutcome(c.Push(cmd.Context(), image)))
			}
			return errors.Join(errs...)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls [<repository>]",
		Aliases: []string{"list"},
		Short:   "List local images",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repository := ""
			if len(args) == 1 {
				repository = args[0]
			}
			return cmdfmt.PrintOutcome(client().List(cmd.Context(), repository))
		},
	}
}

func newRemoveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rm <image> [<image>...]",
		Short: "Remove one or more local images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			results := make([]outcome.StepOutcome, 0, len(args))
			for _, image := range args {
				results = append(results, c.Remove(cmd.Context(), image, force))
			}
			var errs []error
			for _, r := range results {
				errs = append(errs, cmdfmt.PrintOutcome(r))
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove images that are used by containers.")
	return cmd
}
