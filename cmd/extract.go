package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/article-harvester/internal/app"
	"github.com/JakeFAU/article-harvester/internal/source"
)

type extractOptions struct {
	input   string
	jsonOut bool
}

func newExtractCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [url...]",
		Short: "Fetch URLs and save them as Markdown documents",
		Long: `Fetches each URL, escalating to the headless browser when needed, converts
the page to Markdown and writes it to the configured output. URLs come from
the arguments and/or --input (a file, or "-" for stdin) holding one URL or
JSON record per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", `file of URLs or JSON records ("-" for stdin)`)
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print one JSON result per document")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string, opts *extractOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	records, err := collectRecords(args, opts.input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("no URLs given; pass them as arguments or with --input")
	}
	return harvestRecords(cmd, appInstance, records, opts.jsonOut)
}

func harvestRecords(cmd *cobra.Command, appInstance *app.App, records []source.Record, jsonOut bool) error {
	ctx, stop := appInstance.Closers().NotifyContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	var writeErr error
	sum := appInstance.Harvest(ctx, records, func(o app.Outcome) {
		if err := printOutcome(out, o, jsonOut); err != nil && writeErr == nil {
			writeErr = err
		}
	})
	fmt.Fprintf(cmd.ErrOrStderr(), "%d documents, %d placeholders, %d write errors\n",
		sum.Total, sum.Placeholders, sum.WriteErrors)
	return writeErr
}

func collectRecords(args []string, input string, stdin io.Reader) ([]source.Record, error) {
	records, err := source.FromURLs(args)
	if err != nil {
		return nil, fmt.Errorf("arguments: %w", err)
	}
	if input == "" {
		return records, nil
	}
	var r io.Reader = stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	more, err := source.ReadRecords(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", input, err)
	}
	return append(records, more...), nil
}

type outcomeLine struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Tier        string `json:"tier"`
	Reason      string `json:"reason,omitempty"`
	Placeholder bool   `json:"placeholder"`
	BlobURI     string `json:"blob_uri,omitempty"`
	Error       string `json:"error,omitempty"`
}

func printOutcome(w io.Writer, o app.Outcome, jsonOut bool) error {
	line := outcomeLine{
		ID:          o.Document.ID,
		URL:         o.Document.URL,
		Title:       o.Document.Title,
		Tier:        string(o.Document.Tier),
		Reason:      o.Document.Reason,
		Placeholder: o.Document.Placeholder,
		BlobURI:     o.Result.BlobURI,
	}
	if o.Err != nil {
		line.Error = o.Err.Error()
	}
	if jsonOut {
		if err := json.NewEncoder(w).Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		return nil
	}
	status := "ok"
	switch {
	case line.Error != "":
		status = "error: " + line.Error
	case line.Placeholder:
		status = "placeholder"
	}
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", line.URL, line.Tier, status, line.BlobURI); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
