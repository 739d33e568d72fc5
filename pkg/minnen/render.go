package minnen

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"

	"k8s.io/klog/v2"
)

//go:embed assets/gallery.tmpl
var galleryTmpl string

//go:embed assets/style.css
var styleText string

//go:embed assets/gallery.js
var scriptText string

// Render serializes a grouped gallery into one self-contained HTML document.
// It does no I/O; interpolated paths and titles go through html/template's
// contextual escaping.
func Render(c *Config, g *Gallery) ([]byte, error) {
	tmpl, err := template.New("gallery").Parse(galleryTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	data := struct {
		Collection string
		Gallery    *Gallery
		Style      template.CSS
		Script     template.JS
	}{
		Collection: c.Collection,
		Gallery:    g,
		Style:      template.CSS(styleText),
		Script:     template.JS(scriptText),
	}

	var tpl bytes.Buffer
	if err = tmpl.Execute(&tpl, data); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	return tpl.Bytes(), nil
}

// WriteGallery renders the gallery page and writes it to the configured
// output path.
func WriteGallery(c *Config, g *Gallery) error {
	bs, err := Render(c, g)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	klog.V(1).Infof("writing gallery with %d items to %s", g.Count, c.OutputPath())
	return os.WriteFile(c.OutputPath(), bs, 0o644)
}
