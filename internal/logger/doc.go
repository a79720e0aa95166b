// Package logger provides structured JSON logging and in-process metrics for apod-api.
//
// Log entries are written as one JSON object per line with timestamp, level and
// message keys plus arbitrary structured fields. The encoder is zap's JSON encoder.
//
// Example usage:
//
//	logger.Info("fetched page", logger.Fields{
//	    "date": "2023-01-01",
//	    "status": 200,
//	})
//
//	logger.Error("upstream request failed", logger.Fields{
//	    "url": pageURL,
//	}, err)
//
//	metrics := logger.DefaultMetrics()
//	metrics.IncrCounter("scraper.fetch.ok")
//	metrics.RecordTiming("scraper.fetch", duration)
package logger
