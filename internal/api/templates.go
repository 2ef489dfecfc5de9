package api

import (
	"embed"         // Embedded page templates
	"html/template" // HTML rendering
	"time"          // Date parsing

	"calorie_tracker/internal/domain" // Day layout
)

//go:embed templates/*.html
var templateFS embed.FS

// prettyDateLayout renders ledger days on the home page
const prettyDateLayout = "January 2, 2006"

// Templates parses the embedded pages with the helper funcs they use
func Templates() *template.Template {
	return template.Must(template.New("").
		Funcs(template.FuncMap{"pretty_date": prettyDate}).
		ParseFS(templateFS, "templates/*.html"))
}

// prettyDate turns "2024-05-01" into "May 1, 2024", leaving unparseable values as they are
func prettyDate(day string) string {
	t, err := time.Parse(domain.DayLayout, day)
	if err != nil {
		return day
	}
	return t.Format(prettyDateLayout)
}
