// Package cli implements the command-line interface for apod-api.
//
// The cli package provides the Cobra-based commands: serve runs the HTTP API
// (and is the default), fetch scrapes one day or week and prints it as text or
// JSON, and version prints the build version. Settings come from the config
// package, so every flag can also be set through APOD_* variables or a YAML file.
package cli
