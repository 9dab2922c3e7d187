package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatTXT  Format = "txt"
)

// ParseFormat maps unknown values to JSON.
func ParseFormat(s string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHTML, FormatTXT:
		return f
	}
	return FormatJSON
}

func (f Format) fileName() string { return "export." + string(f) }

func render(w io.Writer, f Format, m *Manifest, loc *time.Location) error {
	switch f {
	case FormatHTML:
		return htmlTemplate.Execute(w, htmlView{Manifest: m, loc: loc})
	case FormatTXT:
		return renderText(w, m, loc)
	default:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
}

func stamp(unix int64, loc *time.Location) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).In(loc).Format("2006-01-02 15:04")
}

func renderText(w io.Writer, m *Manifest, loc *time.Location) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Chat Export: %s\n", m.Channel.Title)
	fmt.Fprintf(&b, "Exported: %s\n", m.ExportedAt)
	fmt.Fprintf(&b, "Messages: %d\n", m.MessageCount)
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	for i := range m.Messages {
		msg := &m.Messages[i]
		fmt.Fprintf(&b, "[%s] %s:\n", stamp(msg.Date, loc), msg.SenderName())
		if msg.Text != "" {
			b.WriteString(msg.Text + "\n")
		}
		if msg.Media != nil {
			fmt.Fprintf(&b, "[Media: %s]\n", msg.Media.Type)
		}
		b.WriteString("\n")
	}
	_, err := w.Write(b.Bytes())
	return err
}

type htmlView struct {
	*Manifest
	loc *time.Location
}

func (v htmlView) Stamp(unix int64) string { return stamp(unix, v.loc) }

var htmlTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Channel.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #0f1419; color: #e7e9ea; line-height: 1.5;
        }
        .header {
            background: #1a1f26; padding: 20px; border-bottom: 1px solid #2f3336;
            position: sticky; top: 0; z-index: 100;
        }
        .header h1 { font-size: 1.5rem; margin-bottom: 5px; }
        .header .meta { color: #71767b; font-size: 0.875rem; }
        .messages { max-width: 800px; margin: 0 auto; padding: 20px; }
        .message {
            background: #1a1f26; border-radius: 12px; padding: 16px;
            margin-bottom: 12px; border: 1px solid #2f3336;
        }
        .message .sender { color: #1d9bf0; font-weight: 600; margin-bottom: 4px; }
        .message .text { white-space: pre-wrap; }
        .message .time { color: #71767b; font-size: 0.75rem; margin-top: 8px; }
        .message .media { margin-top: 10px; }
        .message .media img, .message .media video { max-width: 100%; border-radius: 8px; }
        .message .media .file {
            background: #2f3336; padding: 10px; border-radius: 8px;
            display: flex; align-items: center; gap: 10px;
        }
        .pinned { border-color: #1d9bf0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Channel.Title}}</h1>
        <div class="meta">
            Exported: {{.ExportedAt}} |
            Messages: {{.MessageCount}} |
            Participants: {{.ParticipantCount}}
        </div>
    </div>
    <div class="messages">
{{- range .Messages}}
        <div class="message{{if .IsPinned}} pinned{{end}}">
            <div class="sender">{{.SenderName}}</div>
            <div class="text">{{.Text}}</div>
{{- with .Media}}
            <div class="media">
{{- if eq .Type "photo"}}<img src="{{.LocalPath}}" alt="Photo">
{{- else if eq .Type "video"}}<video src="{{.LocalPath}}" controls></video>
{{- else}}<div class="file">📎 {{.Filename}}</div>{{end -}}
            </div>
{{- end}}
            <div class="time">{{$.Stamp .Date}}</div>
        </div>
{{- end}}
    </div>
</body>
</html>
`))
