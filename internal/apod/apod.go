package apod

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects how many days a request covers
type Mode string

const (
	ModeDay  Mode = "day"
	ModeWeek Mode = "week"
)

// ErrInvalidMode is returned by ParseMode for anything other than day or week
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode converts user input into a Mode. An empty string means ModeDay.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDay:
		return ModeDay, nil
	case ModeWeek:
		return ModeWeek, nil
	default:
		return "", fmt.Errorf("%w: %q (must be 'day' or 'week')", ErrInvalidMode, s)
	}
}

// Author is a credited author of a picture
type Author struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// APOD is the metadata scraped from a single day's page
type APOD struct {
	Date          time.Time `json:"date"`
	Title         string    `json:"title,omitempty"`
	Image         string    `json:"image,omitempty"`
	FullSizeImage string    `json:"fullSizeImage,omitempty"`
	Authors       []Author  `json:"authors"`
	Description   string    `json:"description,omitempty"`
}

// Options selects the day or week to fetch.
// Date takes precedence over DateText; when neither is set the current day is used.
type Options struct {
	Date     time.Time
	DateText string
	Mode     Mode
}

// DefaultOptions returns a single-day request for today
func DefaultOptions() Options {
	return Options{Mode: ModeDay}
}

// Merge returns a copy of o with every non-zero field of override applied
func (o Options) Merge(override Options) Options {
	merged := o
	if !override.Date.IsZero() {
		merged.Date = override.Date
		merged.DateText = ""
	}
	if override.DateText != "" {
		merged.DateText = override.DateText
		if override.Date.IsZero() {
			merged.Date = time.Time{}
		}
	}
	if override.Mode != "" {
		merged.Mode = override.Mode
	}
	return merged
}
