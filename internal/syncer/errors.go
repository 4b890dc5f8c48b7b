package syncer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrArchiveCorrupt   = errors.New("native archive is corrupt")
	ErrChecksumMismatch = errors.New("content does not match its sha1")
	ErrUnsafePath       = errors.New("path escapes its directory")
)

// Failure is one artifact that could not be synchronized.
type Failure struct {
	Artifact Artifact
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Artifact.Kind, f.Artifact.Name, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// SyncError aggregates every failed artifact of a run.
type SyncError struct {
	Failures []Failure
}

func (e *SyncError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d artifact(s) failed to synchronize", len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n\t")
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *SyncError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
