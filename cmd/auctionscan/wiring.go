package main

import (
	"context"
	"fmt"

	"github.com/pevans/auctionscan/browser"
	"github.com/pevans/auctionscan/carat"
	"github.com/pevans/auctionscan/config"
	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/sheets"
	"google.golang.org/api/option"
)

func newResolver(cfg *config.Config, log logger.Interface) (*dates.Resolver, error) {
	dc, err := cfg.DatesResolverConfig()
	if err != nil {
		return nil, err
	}
	return dates.NewResolver(dc, log), nil
}

func newCalculator(cfg *config.Config, log logger.Interface) *carat.Calculator {
	return carat.NewCalculator(cfg.CaratCalculatorConfig(), log)
}

// openBook opens the configured workbook.
func openBook(ctx context.Context, cfg *config.Config, log logger.Interface) (sheets.Book, error) {
	var client sheets.Client
	switch cfg.Sheets.Backend {
	case config.BackendSQLite:
		client = sheets.NewSQLiteClient(log)
	case config.BackendGoogle:
		var (
			gc  *sheets.GoogleClient
			err error
		)
		if len(cfg.Sheets.CredentialsJSON) > 0 {
			gc, err = sheets.NewGoogleClientWithOptions(ctx, log, option.WithCredentialsJSON(cfg.Sheets.CredentialsJSON))
		} else {
			gc, err = sheets.NewGoogleClient(ctx, cfg.Sheets.CredentialsFile, log)
		}
		if err != nil {
			return nil, err
		}
		client = gc
	default:
		return nil, fmt.Errorf("unknown sheets backend %q", cfg.Sheets.Backend)
	}

	book, err := client.Open(ctx, cfg.Sheets.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return book, nil
}

// openPage starts the configured browser driver. The returned function
// releases the page and the browser.
func openPage(ctx context.Context, cfg *config.Config, log logger.Interface) (browser.Page, func(), error) {
	var (
		page    browser.Page
		release func()
	)

	switch cfg.Browser.Driver {
	case config.DriverStatic:
		client := browser.NewRestyClient(cfg.Browser.Rod.UserAgent, cfg.Timing.PageTimeout)
		sp := browser.NewStaticPage(client, log)
		page, release = sp, func() { sp.Close() }
	case config.DriverRod:
		b, err := browser.LaunchRod(ctx, cfg.Browser.Rod, log)
		if err != nil {
			return nil, nil, err
		}
		rp, err := b.NewPage(ctx)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		page = rp
		release = func() {
			rp.Close()
			b.Close()
		}
	default:
		return nil, nil, fmt.Errorf("unknown browser driver %q", cfg.Browser.Driver)
	}

	page = browser.WithDelay(page, cfg.Timing.PostNavDelayMin, cfg.Timing.PostNavDelayMax)
	return page, release, nil
}
