//go:build !sonic

package main

import (
	"io"

	"github.com/goccy/go-json"
)

func jsonEncode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
