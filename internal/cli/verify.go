package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"copper/internal/storage"
)

const verifyBatch = 256

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every stored blob",
		Long: `Read back every blob in the content store and compare it with its name.
Corrupted blobs are listed, and removed with --prune so the next sync
fetches them again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, prune, cmd)
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "remove corrupted blobs")
	return cmd
}

type verifyOutput struct {
	Checked   int      `json:"checked"`
	Corrupted []string `json:"corrupted,omitempty"`
	Pruned    bool     `json:"pruned"`
}

func runVerify(rootOpts *RootOptions, prune bool, cmd *cobra.Command) error {
	e, err := openEnv(cmd.Context(), rootOpts, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	blobs, err := storage.NewFileSystemStorage(e.dirs.Store, true)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening store", err)
	}

	out := verifyOutput{Pruned: prune}
	for batch := range blobs.List(verifyBatch) {
		for _, hash := range batch {
			out.Checked++
			err := check(blobs, hash)
			if err == nil {
				continue
			}
			if !errors.Is(err, storage.ErrCorrupted) {
				return WrapExitError(ExitFailure, "reading "+hash, err)
			}
			e.logger.Warn("corrupted blob", "hash", hash)
			out.Corrupted = append(out.Corrupted, hash)
			if prune {
				if err := blobs.Remove(hash); err != nil {
					return WrapExitError(ExitFailure, "removing "+hash, err)
				}
			}
		}
	}

	if len(out.Corrupted) > 0 && !prune {
		e.out.Error(fmt.Sprintf("%d of %d blobs are corrupted", len(out.Corrupted), out.Checked), out.Corrupted)
		return &ExitError{Code: ExitFailure, Message: "store has corrupted blobs"}
	}
	text := fmt.Sprintf("%d blobs checked, %d corrupted\n", out.Checked, len(out.Corrupted))
	if prune && len(out.Corrupted) > 0 {
		text = fmt.Sprintf("%d blobs checked, %d corrupted blobs removed\n", out.Checked, len(out.Corrupted))
	}
	return e.out.Success(text, out)
}

func check(blobs storage.Storage, hash string) error {
	r, err := blobs.Get(hash)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(io.Discard, r)
	return err
}
