// Package report persists finished research runs as timestamped JSON
// artifacts, each with a sanitized HTML rendition alongside.
package report
