package main

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
)

//go:embed assets/templates/*.html assets/static/*
var embeddedFiles embed.FS

var pageNames = []string{"home", "about", "conditions", "analysis"}

// loadTemplates parses one template set per page, each sharing the layout.
func loadTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"safeURL": func(s string) template.URL {
			// preview data URLs are built server-side from the upload
			return template.URL(s)
		},
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(
			embeddedFiles,
			path.Join("assets/templates", "layout.html"),
			path.Join("assets/templates", name+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// staticHandler serves the embedded stylesheet and scripts under /static/.
func staticHandler() (http.Handler, error) {
	sub, err := fs.Sub(embeddedFiles, "assets/static")
	if err != nil {
		return nil, err
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub))), nil
}
