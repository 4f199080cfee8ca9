package elftherapist

import "embed"

// TemplateFS holds the HTML templates of the office page, split into layout, pages and partials.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS holds the script and stylesheet served under /static/. Character images are deployed next to
// the binary and are not embedded.
//
//go:embed static/*
var StaticFS embed.FS
