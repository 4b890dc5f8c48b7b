package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"copper/internal/account"
	"copper/internal/arguments"
	"copper/internal/instance"
	"copper/internal/launch"
	"copper/internal/rules"
)

// LaunchOptions are the flags of the launch command.
type LaunchOptions struct {
	Demo     bool
	Width    int
	Height   int
	Player   string
	Instance string
	DryRun   bool
}

// DefaultInstance is the game directory used without --instance.
const DefaultInstance = "default"

// NewLaunchCommand creates the launch command.
func NewLaunchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LaunchOptions{}

	cmd := &cobra.Command{
		Use:   "launch <version>",
		Short: "Synchronize and start a version",
		Long: `Resolve a version from the manifest, synchronize its artifacts and start
the game. The version may be an id, "latest" or "snapshot".

Nothing is started when any artifact fails to synchronize.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Demo, "demo", false, "start in demo mode")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "window width")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "window height")
	cmd.Flags().StringVarP(&opts.Player, "player", "p", "", "offline player name (default from config)")
	cmd.Flags().StringVarP(&opts.Instance, "instance", "i", DefaultInstance, "instance (game directory) name")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the command instead of running it")

	return cmd
}

type commandOutput struct {
	Java string   `json:"java"`
	Args []string `json:"args"`
	Dir  string   `json:"dir"`
}

func runLaunch(rootOpts *RootOptions, opts *LaunchOptions, version string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, rootOpts, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	name := opts.Player
	if name == "" {
		name = e.config.Player
	}
	player, err := account.Offline(name)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("player %q", name), err)
	}

	p, err := e.resolve(ctx, version)
	if err != nil {
		return err
	}
	features := rules.Features{
		Demo:             opts.Demo,
		CustomResolution: opts.Width > 0 && opts.Height > 0,
	}
	result, err := e.synchronize(ctx, p, features)
	if err != nil {
		return err
	}

	gameDir := e.dirs.InstanceDir(opts.Instance)
	if _, err := instance.Ensure(gameDir, opts.Instance, p.ID, e.logger); err != nil {
		return WrapExitError(ExitCommandError, "preparing instance", err)
	}
	asm := &arguments.Assembler{
		Profile:  p,
		Platform: e.platform,
		Features: features,
		Values: arguments.Values{
			AssetsIndexName:    result.AssetIndexID,
			AssetsRoot:         result.AssetsRoot,
			GameAssets:         result.GameAssets,
			Classpath:          result.ClasspathString(e.platform),
			ClasspathSeparator: e.platform.ClasspathSeparator(),
			GameDirectory:      gameDir,
			LauncherName:       e.config.Launcher.Name,
			LauncherVersion:    e.config.Launcher.Version,
			LibraryDirectory:   e.dirs.Libraries,
			NativesDirectory:   result.NativesDir,
			VersionName:        p.ID,
			VersionType:        p.Type,
			PlayerName:         player.Name,
			UUID:               player.SimpleUUID(),
			AccessToken:        player.AccessToken,
			UserType:           player.UserType,
			UserProperties:     "{}",
			ResolutionWidth:    opts.Width,
			ResolutionHeight:   opts.Height,
		},
		LoggingConfig: result.LoggingConfig,
		ExtraJVM:      e.config.JVMArgs,
	}
	c := launch.Command{
		Java: e.config.JavaFor(p.JavaVersion.MajorVersion),
		Args: asm.Build(),
		Dir:  gameDir,
	}

	if opts.DryRun {
		text := c.Java + " " + strings.Join(c.Args, " ") + "\n"
		return e.out.Success(text, commandOutput{Java: c.Java, Args: c.Args, Dir: c.Dir})
	}

	runner := launch.NewRunner(e.logger)
	runner.Stdout, runner.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
	if err := runner.Run(ctx, p.ID, c); err != nil {
		return WrapExitError(ExitFailure, "running "+p.ID, err)
	}
	return nil
}
