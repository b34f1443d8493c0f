package convert

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"cssc/config"
)

// Values is a struct that holds variables we make available for template expansion
type Values struct {
	Context string
	// Stem is source file name without directory and extension
	Stem string
	// Ext is source file extension including dot
	Ext string
	// Dir is slash separated directory of the source relative to the walk
	// root, "." when there is none
	Dir     string
	Source  string
	Minify  bool
	Modules bool
}

func newValues(name config.TemplateFieldName, src string, minify, modules bool) Values {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	return Values{
		Context: string(name),
		Stem:    strings.TrimSuffix(base, ext),
		Ext:     ext,
		Dir:     filepath.ToSlash(filepath.Dir(src)),
		Source:  filepath.ToSlash(src),
		Minify:  minify,
		Modules: modules,
	}
}

func expandTemplate(name config.TemplateFieldName, field string, values Values) (string, error) {
	funcMap := sprig.FuncMap()

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
