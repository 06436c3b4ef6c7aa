package types

import (
	"fmt"
	"strings"
)

type SchemaMismatchError struct {
	Source string
	Line   int
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("schema mismatch")
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " for column '%s'", e.Column)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	return b.String()
}

type UnknownLabelError struct {
	Label   int
	Missing bool
	RowID   string
}

func (e *UnknownLabelError) Error() string {
	if e.Missing {
		return fmt.Sprintf("row '%s' has no label", e.RowID)
	}
	if e.RowID != "" {
		return fmt.Sprintf("row '%s' has unknown label %d", e.RowID, e.Label)
	}
	return fmt.Sprintf("unknown label %d", e.Label)
}

type EmptyMinorityClassError struct {
	Label int
}

func (e *EmptyMinorityClassError) Error() string {
	return fmt.Sprintf("label %d has no rows, cannot balance classes", e.Label)
}

type InvalidSplitRatioError struct {
	Train, Validation, Test float64
}

func (e *InvalidSplitRatioError) Error() string {
	return fmt.Sprintf("invalid split ratios train=%g validation=%g test=%g: ratios must be non-negative and sum to 1", e.Train, e.Validation, e.Test)
}

type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
