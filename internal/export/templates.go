package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var decisionTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/decision.html")
	if err != nil {
		// Fallback to built-in template if file not found
		decisionTemplate = template.Must(template.New("decision").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	decisionTemplate = template.Must(template.New("decision").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for decision template rendering
type TemplateData struct {
	Title           string
	Context         string
	ExpectedOutcome string
	Status          string
	Author          string
	Tags            []string
	CreatedAt       time.Time
	Review          *TemplateReview
}

// TemplateReview holds review data for the template
type TemplateReview struct {
	ActualOutcome  string
	LessonsLearned string
	WouldDoDiff    string
	ReviewedAt     time.Time
}

// RenderDecisionHTML renders the decision template with provided data
func RenderDecisionHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := decisionTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .review { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Author}} | {{.Status}} | {{.CreatedAt.Format "Jan 2, 2006"}}</div>
  <h2>Context</h2>
  <p>{{.Context}}</p>
  <h2>Expected Outcome</h2>
  <p>{{.ExpectedOutcome}}</p>
  {{if .Review}}
  <div class="review">
    <h2>Review</h2>
    <p>{{.Review.ActualOutcome}}</p>
    <p>{{.Review.LessonsLearned}}</p>
  </div>
  {{end}}
</body>
</html>`
