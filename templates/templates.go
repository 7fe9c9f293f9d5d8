package templates

import (
	"embed"
	"html/template"
	"io/fs"

	"photoshare/pkg/session"

	"github.com/a-h/templ"
)

//go:embed *.html
var pages embed.FS

//go:embed static
var static embed.FS

var tmpl = template.Must(template.New("").Funcs(template.FuncMap{
	"plural": func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	},
}).ParseFS(pages, "*.html"))

// HomePage renders the whole frontend: auth or upload form and both photo grids
func HomePage(v session.View) templ.Component {
	return templ.FromGoHTML(tmpl.Lookup("home.html"), v)
}

// ErrorPage renders a bare error message
func ErrorPage(msg string) templ.Component {
	return templ.FromGoHTML(tmpl.Lookup("error.html"), msg)
}

// Static returns the stylesheet and scripts served under /static/
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
