package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pevans/auctionscan/conditions"
	"github.com/spf13/cobra"
)

func newConditionsCommand(a *app) *cobra.Command {
	var (
		format     string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "conditions",
		Short: "List the search conditions of the master tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx := cmd.Context()
			resolver, err := newResolver(a.cfg, a.log)
			if err != nil {
				return err
			}
			book, err := openBook(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer book.Close()

			res, err := conditions.NewReader(a.cfg.Conditions, resolver, a.log).Read(ctx, book)
			if err != nil {
				return err
			}
			if activeOnly {
				res.Conditions = res.Active()
			}

			switch format {
			case "json":
				return printConditionsJSON(cmd.OutOrStdout(), res)
			case "table":
				printConditionsTable(cmd.OutOrStdout(), res)
				return nil
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active conditions")
	return cmd
}

func printConditionsTable(out io.Writer, res *conditions.Result) {
	if len(res.Conditions) == 0 && len(res.Errors) == 0 {
		fmt.Fprintln(out, "No conditions to display.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tACTIVE\tSTART\tEND\tQUERY\tDESTINATION")
	for _, c := range res.Conditions {
		fmt.Fprintf(tw, "%d\t%t\t%s\t%s\t%s\t%s\n",
			c.Row, c.Active, formatDate(c.StartDate), formatDate(c.EndDate), c.Query(), c.Destination)
	}
	tw.Flush()

	for _, e := range res.Errors {
		fmt.Fprintf(out, "skipped %s\n", e.Error())
	}
}

type conditionJSON struct {
	Row         int      `json:"row"`
	Active      bool     `json:"active"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Keywords    []string `json:"keywords"`
	Destination string   `json:"destination"`
}

type rowErrorJSON struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

func printConditionsJSON(out io.Writer, res *conditions.Result) error {
	doc := struct {
		Conditions []conditionJSON `json:"conditions"`
		Errors     []rowErrorJSON  `json:"errors"`
	}{
		Conditions: []conditionJSON{},
		Errors:     []rowErrorJSON{},
	}
	for _, c := range res.Conditions {
		doc.Conditions = append(doc.Conditions, conditionJSON{
			Row:         c.Row,
			Active:      c.Active,
			StartDate:   formatDate(c.StartDate),
			EndDate:     formatDate(c.EndDate),
			Keywords:    c.Keywords,
			Destination: c.Destination,
		})
	}
	for _, e := range res.Errors {
		doc.Errors = append(doc.Errors, rowErrorJSON{Row: e.Row, Error: e.Err.Error()})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
