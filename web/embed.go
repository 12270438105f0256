package web

import "embed"

// TemplatesFS holds the dashboard page shell and content partial.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the loader script.
//
//go:embed static/*
var StaticFS embed.FS
