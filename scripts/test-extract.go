package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pfrederiksen/apod-api/internal/apod"
	"github.com/pfrederiksen/apod-api/internal/logger"
	"github.com/pfrederiksen/apod-api/internal/scraper"
)

// Smoke test of the page extractor against the live site:
//
//	go run ./scripts/test-extract.go 2023-01-01
func main() {
	logger.SetDefault(logger.New(logger.LevelDebug, os.Stderr))
	os.Exit(run())
}

func run() int {
	defer func() { _ = logger.Default().Sync() }()

	date := time.Now()
	if len(os.Args) > 1 {
		date = apod.ParseDate(os.Args[1], date)
	}

	s := scraper.New()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger.Debug("Fetching page", logger.Fields{"url": s.PageURL(apod.Normalize(date))})

	result, err := s.FetchDay(ctx, date)
	if err != nil {
		logger.Error("Fetch failed", logger.Fields{"date": apod.Normalize(date).Format(apod.DateLayout)}, err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("Encoding result failed", nil, err)
		return 1
	}

	if result.Image == "" || result.Description == "" || len(result.Authors) == 0 {
		logger.Warn("Some fields came back empty; video days have no image, otherwise the layout may have changed", nil)
		return 0
	}
	logger.Info("Extractor matched every field", logger.Fields{"authors": len(result.Authors)})
	return 0
}
