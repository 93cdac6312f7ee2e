package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Lllllllleong/documentsummaryflow/internal/gcp"
	"github.com/Lllllllleong/documentsummaryflow/internal/models"
	"github.com/Lllllllleong/documentsummaryflow/internal/services"
)

func runSubmit(ctx context.Context, cfg *clientConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	mode := fs.String("mode", string(models.ModeBrief), "summary mode: brief, detailed, comprehensive or timeline")
	model := fs.String("model", services.DefaultModel, "language model identifier")
	description := fs.String("description", "", "details to emphasise; prepended to the default template")
	templateFile := fs.String("template-file", "", "file holding a custom prompt template (overrides -description)")
	email := fs.String("email", "", "send the finished summary to this address")
	save := fs.Bool("save", false, "save the result as a snapshot")
	expand := fs.Bool("expand", true, "expand every file section in the output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsedMode, err := models.ParseMode(*mode)
	if err != nil {
		return err
	}
	files, err := services.LoadFiles(ctx, fs.Args())
	if err != nil {
		return err
	}

	store, closeStore, err := openWorkspace(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.DatabaseID)
	if err != nil {
		return err
	}
	resultStore := services.NewFirestoreStore(firestoreClient, cfg.Collection)
	defer resultStore.Close()

	poller, err := services.NewPoller(resultStore, cfg.Poll)
	if err != nil {
		return err
	}
	uploader := services.NewUploadClient(cfg.RelayURL, cfg.RelayTimeout, nil)
	session := services.NewSession(uploader, poller, store)

	if err := session.SelectFiles(files); err != nil {
		return err
	}
	collector := session.Collector()
	collector.SetMode(parsedMode)
	collector.SetModel(*model)
	collector.SetDescription(*description)
	if *templateFile != "" {
		data, err := os.ReadFile(*templateFile)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		collector.SetTemplate(string(data))
	}
	collector.SetNotify(*email != "", *email)

	handle, err := session.Submit(ctx)
	if err != nil {
		if errors.Is(err, models.ErrUploadFailed) {
			return fmt.Errorf("upload failed: the file exceeds the limit or is corrupted, try again with a different file (%v)", err)
		}
		return err
	}
	infoColor.Fprintf(stdout, "Submitted %d file(s) as job %s. Processing can take up to 10 minutes.\n", len(files), handle.Job.ID)

	res := handle.Wait()
	switch session.State() {
	case services.StateComplete:
	case services.StateFailed:
		return fmt.Errorf("checking for results failed after %d attempt(s): %w", res.Attempts, session.Err())
	case services.StateTimedOut:
		return fmt.Errorf("no results for job %s after %d attempt(s): %w", handle.Job.ID, res.Attempts, session.Err())
	default:
		return fmt.Errorf("polling stopped: %v", res.Err)
	}

	display := session.Display()
	if *expand {
		display.ExpandAll()
	}
	successColor.Fprintf(stdout, "Results for job %s (%s)\n\n", handle.Job.ID, strings.ToLower(string(parsedMode)))
	if err := display.WriteText(stdout); err != nil {
		return err
	}

	if *save {
		snap, err := session.SaveSnapshot(ctx)
		if err != nil {
			return err
		}
		successColor.Fprintf(stdout, "Saved as %q (id %d).\n", snap.Label, snap.ID)
	}
	return nil
}
