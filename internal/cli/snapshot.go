package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/zeusync/recsync/internal/config"
	"github.com/zeusync/recsync/internal/core/observability/log"
	"github.com/zeusync/recsync/internal/core/snapshot"
	"github.com/zeusync/recsync/internal/injector"
)

// SnapshotSummary is the report printed by "snapshot inspect".
type SnapshotSummary struct {
	Path       string         `json:"path"`
	StateHash  string         `json:"stateHash"`
	Verified   bool           `json:"verified"`
	StartBlock uint64         `json:"startBlock"`
	EndBlock   uint64         `json:"endBlock"`
	Entries    int            `json:"entries"`
	Entities   int            `json:"entities"`
	Components map[string]int `json:"components"`
	Error      string         `json:"error,omitempty"`
}

func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Work with world snapshots",
	}
	cmd.AddCommand(newSnapshotInspectCommand(rootOpts))
	cmd.AddCommand(newSnapshotCaptureCommand(rootOpts))
	return cmd
}

func newSnapshotCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		timeout    time.Duration
		startBlock uint64
		endBlock   uint64
	)

	cmd := &cobra.Command{
		Use:   "capture <file>",
		Short: "Sync the configured world and write it as a snapshot",
		Long: `Sync the configured world until the source is exhausted or the timeout
elapses, then write every component value to a snapshot file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			snap, err := captureSnapshot(cmd.Context(), cfg, timeout, startBlock, endBlock)
			if err != nil {
				return err
			}
			if err := snapshot.WriteFile(args[0], snap); err != nil {
				return err
			}
			summary, err := inspectSnapshot(args[0])
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), rootOpts.Format, summary)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "stop syncing after this long")
	cmd.Flags().Uint64Var(&startBlock, "start-block", 0, "first block covered by the snapshot")
	cmd.Flags().Uint64Var(&endBlock, "end-block", 0, "last block covered by the snapshot")

	return cmd
}

func captureSnapshot(ctx context.Context, cfg *config.Config, timeout time.Duration, startBlock, endBlock uint64) (*snapshot.Snapshot, error) {
	a, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	defer func() { _ = a.Logger.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	snap, err := snapshot.FromWorld(a.World, startBlock, endBlock)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("snapshot captured",
		log.String("hash", snap.StateHash),
		log.Int("entries", len(snap.State)),
		log.Int("entities", len(snap.Entities)),
	)
	return snap, nil
}

func newSnapshotInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode and verify a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := inspectSnapshot(args[0])
			if err != nil {
				return err
			}
			if err := writeSummary(cmd.OutOrStdout(), rootOpts.Format, summary); err != nil {
				return err
			}
			if !summary.Verified {
				return fmt.Errorf("snapshot %s failed verification: %s", args[0], summary.Error)
			}
			return nil
		},
	}
}

func inspectSnapshot(path string) (*SnapshotSummary, error) {
	snap, err := snapshot.ReadFile(path)
	if err != nil {
		return nil, err
	}
	summary := &SnapshotSummary{
		Path:       path,
		StateHash:  snap.StateHash,
		StartBlock: snap.StartBlock,
		EndBlock:   snap.EndBlock,
		Entries:    len(snap.State),
		Entities:   len(snap.Entities),
		Components: make(map[string]int, len(snap.Components)),
	}
	for _, entry := range snap.State {
		summary.Components[snap.Components[entry.Component]]++
	}
	if err := snap.Verify(); err != nil {
		summary.Error = err.Error()
	} else {
		summary.Verified = true
	}
	return summary, nil
}

func writeSummary(w io.Writer, format string, s *SnapshotSummary) error {
	if format == "json" {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	status := "ok"
	if !s.Verified {
		status = "MISMATCH"
	}
	fmt.Fprintf(w, "snapshot   %s\n", s.Path)
	fmt.Fprintf(w, "hash       %s (%s)\n", s.StateHash, status)
	fmt.Fprintf(w, "blocks     %d..%d\n", s.StartBlock, s.EndBlock)
	fmt.Fprintf(w, "entries    %d\n", s.Entries)
	fmt.Fprintf(w, "entities   %d\n", s.Entities)

	ids := make([]string, 0, len(s.Components))
	for id := range s.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %-24s %d\n", id, s.Components[id])
	}
	return nil
}
