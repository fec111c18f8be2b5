package main

import (
	"fmt"
	"time"

	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/extract"
	"github.com/spf13/cobra"
)

func newDateCommand(a *app) *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "date <text>...",
		Short: "Resolve end-date texts the way the crawler does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if policy != "" {
				a.cfg.Dates.YearPolicy = dates.YearPolicy(policy)
			}
			resolver, err := newResolver(a.cfg, a.log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, text := range args {
				d, err := resolver.Resolve(text)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s\t%v\n", text, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", text, d.Format(time.DateOnly))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d dates could not be resolved", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "year-policy", "", "current or smart_rollover (default from config)")
	return cmd
}

func newPriceCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "price <title> <price>",
		Short: "Show the carat and price per carat of a listing title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := extract.ParsePrice(args[1], a.cfg.Site.Detail.PriceStrip)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}

			res, err := newCalculator(a.cfg, a.log).Calculate(args[0], price)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "carat\t%s\n", res.Carat)
			fmt.Fprintf(out, "price\t%d\n", price)
			fmt.Fprintf(out, "price_per_carat\t%d\n", res.PricePerCarat)
			return nil
		},
	}
}
