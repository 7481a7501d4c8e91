package handler

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
)

var errAlreadyResponded = errors.New("response already started")

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Status}} {{.Reason}}</title></head>
<body>
<h1>{{.Reason}}</h1>
{{range .Details}}<p><b>{{.Label}}</b>: {{.Value}}</p>
{{end}}<hr />
<p><em>Generated by tinyproxy.</em></p>
</body>
</html>
`))

type detail struct {
	Label string
	Value string
}

type errorPageData struct {
	Status  int
	Reason  string
	Details []detail
}

// writeErrorPage renders an HTML error response. details are label/value
// pairs; a trailing label with no value is dropped.
func writeErrorPage(w http.ResponseWriter, status int, reason string, details ...string) error {
	data := errorPageData{Status: status, Reason: reason}
	for i := 0; i+1 < len(details); i += 2 {
		data.Details = append(data.Details, detail{Label: details[i], Value: details[i+1]})
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Connection", "close")
	h.Set("X-Tinyproxy-Status", strconv.Itoa(status))
	w.WriteHeader(status)

	return errorPage.Execute(w, data)
}
