// Package web carries the embedded UI assets so the shop binaries deploy
// as a single file.
package web

import "embed"

// Templates holds the layout, page and partial templates rendered by the
// view engine.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static holds the stylesheet and other assets served under /static/.
//
//go:embed static/**/*
var Static embed.FS
