// Package server exposes the APOD scraper over HTTP using gin.
//
// Routes:
//
//	GET /               plain-text greeting
//	GET /apod           the seven days of last calendar week
//	GET /apod/:date     a single day (YYYY-MM-DD, falls back to today)
//	GET /health         service status
//	GET /debug/metrics  in-process metrics snapshot
//
// Both /apod routes accept ?partial=true to return the days that could be
// fetched instead of failing the whole request.
package server
