package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"copper/internal/rules"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync <version>",
		Short:         "Synchronize a version without starting it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, args[0], cmd)
		},
	}
}

type syncOutput struct {
	Version    string   `json:"version"`
	Fetched    int      `json:"fetched"`
	Reused     int      `json:"reused"`
	Classpath  []string `json:"classpath"`
	NativesDir string   `json:"natives_dir"`
	AssetIndex string   `json:"asset_index"`
}

func runSync(rootOpts *RootOptions, version string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, rootOpts, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.resolve(ctx, version)
	if err != nil {
		return err
	}
	result, err := e.synchronize(ctx, p, rules.Features{})
	if err != nil {
		return err
	}

	out := syncOutput{
		Version:    p.ID,
		Fetched:    result.Fetched,
		Reused:     result.Reused,
		Classpath:  result.Classpath,
		NativesDir: result.NativesDir,
		AssetIndex: result.AssetIndexID,
	}
	text := fmt.Sprintf("%s is ready: %d fetched, %d already present\n", p.ID, result.Fetched, result.Reused)
	return e.out.Success(text, out)
}
