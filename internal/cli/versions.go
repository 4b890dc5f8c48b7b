package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	var snapshots bool
	cmd := &cobra.Command{
		Use:           "versions",
		Short:         "List the versions in the manifest",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(rootOpts, snapshots, cmd)
		},
	}
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "include snapshots and old alphas and betas")
	return cmd
}

type versionOutput struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ReleaseTime string `json:"release_time"`
	Latest      bool   `json:"latest,omitempty"`
}

func runVersions(rootOpts *RootOptions, snapshots bool, cmd *cobra.Command) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, rootOpts, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	manifest, err := e.docs.VersionManifest(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "loading version manifest", err)
	}

	var (
		out  []versionOutput
		text strings.Builder
	)
	for _, v := range manifest.Versions {
		if !snapshots && v.Type != "release" {
			continue
		}
		latest := v.ID == manifest.Latest.Release || v.ID == manifest.Latest.Snapshot
		out = append(out, versionOutput{ID: v.ID, Type: v.Type, ReleaseTime: v.ReleaseTime, Latest: latest})
		fmt.Fprintf(&text, "%s\t%s\t%s", v.ID, v.Type, v.ReleaseTime)
		if latest {
			text.WriteString("\t(latest)")
		}
		text.WriteString("\n")
	}
	return e.out.Success(text.String(), out)
}
