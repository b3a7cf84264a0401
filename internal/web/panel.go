package web

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"

	"toolhost/internal/store"
	"toolhost/internal/tool"
)

var panelTmpl = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; justify-content: center; padding-top: 10vh; }
.panel { max-width: 28rem; text-align: center; }
.panel h1 { font-size: 1.2rem; }
.panel p { color: #666; }
.panel a { margin: 0 8px; }
</style>
</head>
<body>
<div class="panel">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{- if .Retry}}
<a href="">Try again</a>
{{- end}}
<a href="/">Back</a>
</div>
</body>
</html>
`))

type panelData struct {
	Title   string
	Message string
	Retry   bool
}

// panelFor maps a resolution failure to its status code and user-facing
// wording. Only transient failures offer a retry.
func panelFor(err error) (int, panelData) {
	switch {
	case errors.Is(err, tool.ErrNotFound):
		return http.StatusNotFound, panelData{
			Title:   "Tool not found",
			Message: "This tool does not exist. It may have been removed.",
		}
	case errors.Is(err, tool.ErrDisabled):
		return http.StatusForbidden, panelData{
			Title:   "Tool unavailable",
			Message: "This tool is currently disabled by its maintainers.",
		}
	case errors.Is(err, tool.ErrTypeMismatch):
		return http.StatusBadRequest, panelData{
			Title:   "Tool cannot be embedded",
			Message: "This tool is hosted elsewhere and cannot be shown here.",
		}
	case errors.Is(err, tool.ErrPayloadMissing):
		return http.StatusUnprocessableEntity, panelData{
			Title:   "Tool has no content",
			Message: "This tool has nothing to display yet.",
		}
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, panelData{
			Title:   "Temporarily unavailable",
			Message: "The tool service is not responding. Please try again shortly.",
			Retry:   true,
		}
	default:
		return http.StatusInternalServerError, panelData{
			Title:   "Something went wrong",
			Message: "An unexpected error occurred while loading this tool.",
			Retry:   true,
		}
	}
}

func renderPanel(err error) (int, []byte) {
	status, data := panelFor(err)
	var buf bytes.Buffer
	if tmplErr := panelTmpl.Execute(&buf, data); tmplErr != nil {
		return http.StatusInternalServerError, []byte(data.Title)
	}
	return status, buf.Bytes()
}
