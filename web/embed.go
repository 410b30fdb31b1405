// Package web holds the dashboard page and its static assets.
package web

import "embed"

// TemplatesFS embeds the dashboard page template.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and the script that reads the JSON API.
//
//go:embed static/*
var StaticFS embed.FS
