// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command logsmctl inspects JSON snapshots produced by
// spacemap.Pool.Snapshot — a small offline companion to the engine,
// not a replacement for driving the pool itself.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	spacemap "github.com/loglsm/spacemap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "logsmctl",
		Short: "Inspect log-space-map pool snapshots",
	}
	root.AddCommand(newStatsCmd(), newGraphCmd())
	return root
}

func loadSnapshot(path string) (spacemap.Snapshot, error) {
	var snap spacemap.Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("logsmctl: decoding snapshot: %w", err)
	}
	return snap, nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <snapshot.json>",
		Short: "Print a snapshot's pool-wide stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("pool %s: %s\n", snap.PoolID, snap.Stats.String())
			fmt.Printf("  %d LSMs, %d summary rows\n", len(snap.LSMs), len(snap.Rows))
			return nil
		},
	}
}

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <snapshot.json>",
		Short: "Plot the summary queue's block-count history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(args[0])
			if err != nil {
				return err
			}
			if len(snap.Rows) == 0 {
				fmt.Println("(no summary rows)")
				return nil
			}
			series := make([]float64, len(snap.Rows))
			for i, r := range snap.Rows {
				series[i] = float64(r.BlkCount)
			}
			graph := asciigraph.Plot(series,
				asciigraph.Caption("blkcount per summary row (oldest → newest)"),
				asciigraph.Height(10))
			fmt.Println(graph)
			return nil
		},
	}
}
