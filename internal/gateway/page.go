package gateway

import (
	"embed"
	"html/template"
	"log"
	"net/http"
)

//go:embed templates/chart.tmpl
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/chart.tmpl"))

// renderPage serves the chart page. An empty chart shows every chart.
func renderPage(w http.ResponseWriter, chart string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, struct{ Chart string }{chart}); err != nil {
		log.Printf("[gateway] render page: %v", err)
	}
}
