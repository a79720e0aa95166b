// Package scraper fetches Astronomy Picture of the Day pages and extracts their metadata.
//
// Each day is published as a static page at https://apod.nasa.gov/apod/apYYMMDD.html.
// The scraper builds that URL for every requested date, fetches all pages
// concurrently and maps each page onto an apod.APOD using a versioned Extractor.
// Results are always returned in the order of the requested dates.
//
// Transport failures and non-200 responses are errors. Pages whose layout does
// not match the extractor simply produce empty fields.
package scraper
