package main

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/pevans/auctionscan"
	"github.com/pevans/auctionscan/auction"
	"github.com/pevans/auctionscan/conditions"
	"github.com/pevans/auctionscan/extract"
	"github.com/pevans/auctionscan/listing"
	"github.com/pevans/auctionscan/writer"
	"github.com/spf13/cobra"
)

func newCrawlCommand(a *app) *cobra.Command {
	var (
		rows      []int
		lookahead int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every active condition and append new listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if lookahead >= 0 {
				cfg.Site.List.Lookahead = lookahead
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx := cmd.Context()
			resolver, err := newResolver(cfg, a.log)
			if err != nil {
				return err
			}

			book, err := openBook(ctx, cfg, a.log)
			if err != nil {
				return err
			}
			defer book.Close()

			read, err := conditions.NewReader(cfg.Conditions, resolver, a.log).Read(ctx, book)
			if err != nil {
				return err
			}
			conds := read.Conditions
			if len(rows) > 0 {
				conds = slices.DeleteFunc(conds, func(c auction.SearchCondition) bool {
					return !slices.Contains(rows, c.Row)
				})
			}
			if len(conds) == 0 {
				a.log.Warn("no conditions to crawl")
				return nil
			}

			page, release, err := openPage(ctx, cfg, a.log)
			if err != nil {
				return err
			}
			defer release()

			scanner := listing.NewScanner(listing.Config{
				List:         cfg.Site.List,
				PerPage:      cfg.Site.PerPage,
				PageTimeout:  cfg.Timing.PageTimeout,
				FindTimeout:  cfg.Timing.FindTimeout,
				ClickTimeout: cfg.Timing.ClickTimeout,
				ProbeTimeout: cfg.Timing.ProbeTimeout,
			}, resolver, a.log)
			extractor := extract.New(extract.Config{
				Detail:      cfg.Site.Detail,
				PageTimeout: cfg.Timing.PageTimeout,
				FindTimeout: cfg.Timing.FindTimeout,
				MinCarat:    cfg.Carat.MinCarat,
			}, resolver, newCalculator(cfg, a.log), a.log)
			w := writer.New(book, cfg.Writer, a.log)

			crawler := auctionscan.NewCrawler(auctionscan.CrawlConfig{
				SearchURL: cfg.Site.SearchURL,
				PerPage:   cfg.Site.PerPage,
				Lookahead: cfg.Site.List.Lookahead,
				SlowRun:   10 * time.Minute,
			}, page, scanner, extractor, w, a.log)

			batch := crawler.Run(ctx, conds)
			printBatch(cmd.OutOrStdout(), batch)

			if err := ctx.Err(); err != nil {
				return err
			}
			if failed := batch.Count(auctionscan.StatusFailed); failed > 0 {
				return fmt.Errorf("%d of %d conditions failed", failed, len(batch.Runs))
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&rows, "row", nil, "only crawl the conditions on these sheet rows")
	cmd.Flags().IntVar(&lookahead, "lookahead", -1, "pages read past the window start (default from config)")
	return cmd
}

// printBatch prints one line per run.
func printBatch(out io.Writer, batch *auctionscan.BatchResult) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tQUERY\tSTATUS\tPAGES\tCANDIDATES\tWRITTEN\tSKIPPED\tFAILED\tERROR")
	for _, r := range batch.Runs {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Condition.Row,
			r.Condition.Query(),
			r.Status,
			r.Stats.PagesVisited,
			r.Stats.CandidatesAdded,
			r.Stats.RecordsWritten,
			r.Stats.RecordsSkipped,
			r.Stats.DetailsFailed,
			errText,
		)
	}
	tw.Flush()
}
