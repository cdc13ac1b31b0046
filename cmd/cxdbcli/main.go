// Command cxdbcli exercises the capture/upload/attach/resolve surface:
// capture a directory, push it to a live server and attach it to a turn,
// or read a file back out of a snapshot resolved from a local capture.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/cxdb-io/cxdbgo/blobstore"
	"github.com/cxdb-io/cxdbgo/client"
	"github.com/cxdb-io/cxdbgo/fstree"
	"github.com/cxdb-io/cxdbgo/fsroots"
	"github.com/cxdb-io/cxdbgo/stats"
)

const cliName = "cxdbcli"

func main() {
	app := cli.NewApp()
	app.Name = cliName
	app.Usage = "capture, upload, and inspect content-addressed filesystem snapshots"
	app.Commands = []cli.Command{snapshotCmd, uploadCmd, catCmd}

	if err := app.Run(os.Args); err != nil {
		color.Red("%s: %v", cliName, err)
		os.Exit(1)
	}
}

var snapshotCmd = cli.Command{
	Name:      "snapshot",
	Usage:     "capture a directory and print its stats",
	ArgsUsage: "<dir>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a JSON config file"},
		cli.StringSliceFlag{Name: "exclude", Usage: "glob pattern to exclude, repeatable"},
		cli.BoolFlag{Name: "follow-symlinks"},
	},
	Action: func(c *cli.Context) error {
		dir := c.Args().First()
		if dir == "" {
			return cli.NewExitError("snapshot requires a directory argument", 1)
		}

		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		var opts []fstree.Option
		if patterns := mergeExclude(cfg.Exclude, c.StringSlice("exclude")); len(patterns) > 0 {
			opts = append(opts, fstree.WithExclude(patterns...))
		}
		if c.Bool("follow-symlinks") || cfg.FollowSymlinks {
			opts = append(opts, fstree.WithFollowSymlinks())
		}

		snap, err := fstree.Capture(dir, fstree.NewOptions(opts...))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		color.Green("root hash: %s", hex.EncodeToString(snap.RootHash[:]))
		fmt.Printf("files=%d dirs=%d symlinks=%d bytes=%d duration=%s\n",
			snap.Stats.FileCount, snap.Stats.DirCount, snap.Stats.SymlinkCount,
			snap.Stats.TotalBytes, snap.Stats.Duration)
		return nil
	},
}

var uploadCmd = cli.Command{
	Name:      "upload",
	Usage:     "capture a directory, upload it, and attach it to a turn",
	ArgsUsage: "<dir>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a JSON config file"},
		cli.StringFlag{Name: "addr", Usage: "server address host:port (overrides config)"},
		cli.Uint64Flag{Name: "turn", Required: true, Usage: "turn id to attach the snapshot to"},
		cli.StringSliceFlag{Name: "exclude"},
	},
	Action: func(c *cli.Context) error {
		dir := c.Args().First()
		if dir == "" {
			return cli.NewExitError("upload requires a directory argument", 1)
		}

		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		addr := c.String("addr")
		if addr == "" {
			addr = cfg.Addr
		}
		if addr == "" {
			return cli.NewExitError("upload requires --addr or a config file addr", 1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		tr := stats.NewTracker(nil)
		dialTimeout := time.Duration(cfg.DialTimeoutSecs) * time.Second
		cl, err := client.Dial(ctx, addr, client.Options{ClientTag: cliName, DialTimeout: dialTimeout, Stats: tr})
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer cl.Close()

		var opts []fstree.Option
		if patterns := mergeExclude(cfg.Exclude, c.StringSlice("exclude")); len(patterns) > 0 {
			opts = append(opts, fstree.WithExclude(patterns...))
		}

		snap, result, err := fstree.UploadAndAttach(ctx, dir, fstree.NewOptions(opts...), c.Uint64("turn"), cl)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		reportUpload(tr, result)

		color.Green("attached root hash: %s", hex.EncodeToString(snap.RootHash[:]))
		fmt.Printf("uploaded: trees=%d files=%d symlinks=%d bytes=%d (deduped: trees=%d files=%d symlinks=%d)\n",
			result.TreesUploaded, result.FilesUploaded, result.SymlinksUploaded, result.BytesUploaded,
			result.TreesSkipped, result.FilesSkipped, result.SymlinksSkipped)
		return nil
	},
}

// reportUpload folds an UploadResult's aggregate tallies into tr: the
// novel bytes as one observation, each deduplicated blob as another.
func reportUpload(tr *stats.Tracker, result fstree.UploadResult) {
	if result.BytesUploaded > 0 {
		tr.ObserveUpload(result.BytesUploaded, true)
	}
	deduped := result.TreesSkipped + result.FilesSkipped + result.SymlinksSkipped
	for i := 0; i < deduped; i++ {
		tr.ObserveUpload(0, false)
	}
}

var catCmd = cli.Command{
	Name:  "cat",
	Usage: "capture <dir> locally, then resolve <path> within it and print the content",
	// The wire RPC surface has no "get blob" op — path resolution reads
	// a blobstore.Store directly (see fsroots), so this demonstrates it
	// against a fresh local capture rather than a remote server.
	ArgsUsage: "<dir> <path>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return cli.NewExitError("cat requires <dir> <path>", 1)
		}
		dir, path := c.Args().Get(0), c.Args().Get(1)

		store := blobstore.NewMemory()
		snap, err := fstree.Capture(dir, fstree.NewOptions())
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		for _, blob := range snap.Trees {
			store.Put(blob)
		}
		for hash, ref := range snap.Files {
			data, err := os.ReadFile(ref.AbsPath)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			if h, _ := store.Put(data); h != hash {
				return cli.NewExitError("file content changed since capture", 1)
			}
		}
		for _, target := range snap.Symlinks {
			store.Put([]byte(target))
		}

		resolved, err := fsroots.GetFileAtPath(store, snap.RootHash, path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		os.Stdout.Write(resolved.Content)
		return nil
	},
}
