package handler

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/hitoshi/cabinet/internal/model"
)

// previewContentSecurityPolicy はプレビューページのCSP。インラインスタイルのみ許可する。
const previewContentSecurityPolicy = "default-src 'self'; style-src 'unsafe-inline'"

// ファイル内容はhtml/templateによりエスケープされてから<pre>に埋め込まれる。
var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>File preview: {{.Name}}</title>
    <style>
      body {
        font-family: monospace;
        padding: 20px;
        white-space: pre-wrap;
        word-wrap: break-word;
        max-width: 100%;
        margin: 0 auto;
        background: #f5f5f5;
      }
      pre {
        background: white;
        padding: 15px;
        border-radius: 5px;
        border: 1px solid #ddd;
        overflow-x: auto;
      }
    </style>
  </head>
  <body>
    <pre>{{.Content}}</pre>
  </body>
</html>
`))

type previewData struct {
	Name    string
	Content string
}

func renderPreview(file *model.StoredFile) ([]byte, error) {
	var buf bytes.Buffer
	err := previewTemplate.Execute(&buf, previewData{
		Name:    file.CanonicalName,
		Content: string(file.Content),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render preview: %w", err)
	}
	return buf.Bytes(), nil
}
