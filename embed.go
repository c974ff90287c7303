package stagehand

import "embed"

// EmbeddedAssets contains the static assets shipped with the package:
// editor.js, the browser side of the editor API.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
