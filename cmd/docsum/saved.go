package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentsummaryflow/internal/services"
	"github.com/Lllllllleong/documentsummaryflow/internal/workspace"
)

// openWorkspace opens the local snapshot store, wiring the Cloud Storage
// exporter when SNAPSHOT_EXPORT_BUCKET is set.
func openWorkspace(ctx context.Context, cfg *clientConfig) (*workspace.Store, func(), error) {
	opts := []workspace.Option{workspace.WithMaxSnapshots(cfg.MaxSnapshots)}
	closeFn := func() {}

	if cfg.ExportBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		exporter, err := workspace.NewGCSExporter(client, cfg.ExportBucket, cfg.ExportPrefix)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		opts = append(opts, workspace.WithExporter(exporter))
		closeFn = func() { client.Close() }
	}

	store, err := workspace.Open(cfg.WorkspacePath, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func runSaved(ctx context.Context, cfg *clientConfig, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("saved: missing subcommand (list, show, rename, delete, export)")
	}
	store, closeStore, err := openWorkspace(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return listSnapshots(store, stdout)
	case "show":
		id, err := snapshotID(rest, 1)
		if err != nil {
			return err
		}
		session := services.NewSession(nil, nil, store)
		display, err := session.SelectSnapshot(id)
		if err != nil {
			return err
		}
		display.ExpandAll()
		return display.WriteText(stdout)
	case "rename":
		id, err := snapshotID(rest, 2)
		if err != nil {
			return err
		}
		label := strings.TrimSpace(strings.Join(rest[1:], " "))
		if label == "" {
			return errors.New("saved rename: label cannot be empty")
		}
		if err := store.Rename(id, label); err != nil {
			return err
		}
		successColor.Fprintf(stdout, "Renamed snapshot %d to %q.\n", id, label)
		return nil
	case "delete":
		id, err := snapshotID(rest, 1)
		if err != nil {
			return err
		}
		deleted, err := store.Delete(id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: %d", workspace.ErrSnapshotNotFound, id)
		}
		successColor.Fprintf(stdout, "Deleted snapshot %d.\n", id)
		return nil
	case "export":
		id, err := snapshotID(rest, 1)
		if err != nil {
			return err
		}
		location, err := store.Export(ctx, id)
		if err != nil {
			return err
		}
		successColor.Fprintf(stdout, "Exported snapshot %d to %s.\n", id, location)
		return nil
	default:
		return fmt.Errorf("saved: unknown subcommand %q", sub)
	}
}

func listSnapshots(store *workspace.Store, stdout io.Writer) error {
	snapshots := store.List()
	if len(snapshots) == 0 {
		infoColor.Fprintln(stdout, "No saved responses.")
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tMODE\tFILES\tSAVED")
	for _, s := range snapshots {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", s.ID, s.Label, s.Mode, len(s.Files), s.SavedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func snapshotID(args []string, want int) (int, error) {
	if len(args) < want {
		return 0, errors.New("missing snapshot id")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid snapshot id %q", args[0])
	}
	return id, nil
}

func runShowLast(cfg *clientConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	expand := fs.Bool("expand", true, "expand every file section")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := workspace.Open(cfg.WorkspacePath)
	if err != nil {
		return err
	}
	content, ok := store.Displayed()
	if !ok {
		infoColor.Fprintln(stdout, "Nothing displayed yet.")
		return nil
	}
	display := services.RenderContent(content)
	if *expand {
		display.ExpandAll()
	}
	return display.WriteText(stdout)
}
