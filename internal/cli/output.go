package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pfrederiksen/apod-api/internal/apod"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// OutputResult contains data to be output
type OutputResult struct {
	FetchedAt   time.Time    `json:"fetched_at"`
	Mode        apod.Mode    `json:"mode"`
	Results     []*apod.APOD `json:"results"`
	FailedDates []string     `json:"failed_dates,omitempty"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	if len(result.Results) == 0 && len(result.FailedDates) == 0 {
		fmt.Fprintln(w, "No pictures found.")
		return nil
	}

	for _, r := range result.Results {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s  %s\n", r.Date.Format(apod.DateLayout), title)

		if r.Image != "" {
			fmt.Fprintf(w, "    Image: %s\n", r.Image)
		}
		if r.FullSizeImage != "" {
			fmt.Fprintf(w, "    Full size: %s\n", r.FullSizeImage)
		}
		for _, a := range r.Authors {
			if verbose && a.Website != "" {
				fmt.Fprintf(w, "    By: %s <%s>\n", a.Name, a.Website)
			} else {
				fmt.Fprintf(w, "    By: %s\n", a.Name)
			}
		}
		if verbose && r.Description != "" {
			fmt.Fprintf(w, "    %s\n", r.Description)
		}
	}

	for _, d := range result.FailedDates {
		fmt.Fprintf(w, "%s  FAILED\n", d)
	}

	fmt.Fprintf(w, "\nTotal: %d pictures", len(result.Results))
	if len(result.FailedDates) > 0 {
		fmt.Fprintf(w, ", %d failed", len(result.FailedDates))
	}
	fmt.Fprintln(w)

	return nil
}
