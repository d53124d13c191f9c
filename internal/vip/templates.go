package vip

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"

	"supportcore/internal/models"
	"supportcore/internal/utils"
)

// Notification is everything rendered into a VIP email
type Notification struct {
	CustomerName     string
	CustomerEmail    string
	OriginalMessage  string
	ReplyMessage     string
	ReplyAuthor      string
	ConversationLink string
	CustomerLinks    []models.CustomerLink
	Closed           bool
}

// Subject returns the email subject line
func (n *Notification) Subject() string {
	return "VIP Customer: " + n.CustomerName
}

// StatusText is the conversation state shown to recipients
func (n *Notification) StatusText() string {
	if n.Closed {
		return "Resolved"
	}
	return "Open"
}

const plainTemplate = `VIP Customer • {{.StatusText}}
New message from {{.CustomerName}} ({{.CustomerEmail}})

Original message:
{{.OriginalMessage}}
{{- if .ReplyMessage}}

Reply:
{{.ReplyMessage}}
{{- end}}
{{- if .CustomerLinks}}

Customer links:
{{- range .CustomerLinks}}
- {{.Label}}: {{.URL}}
{{- end}}
{{- end}}

View conversation: {{.ConversationLink}}
{{- if and .Closed .ReplyAuthor}}
Closed by {{.ReplyAuthor}}
{{- end}}
`

const htmlTemplate = `<!DOCTYPE html>
<html>
<head><meta http-equiv="Content-Type" content="text/html; charset=UTF-8"></head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
<div style="padding:32px 16px;">
<div style="max-width:640px;margin:0 auto;border:1px solid #e5e7eb;border-radius:12px;">
<div style="padding:28px 32px 16px;border-bottom:1px solid #e5e7eb;">
<p style="margin:0;font-size:20px;font-weight:700;">&#11088; VIP Customer &bull; {{.StatusText}}</p>
<p style="margin:10px 0 0;font-size:14px;">New message from <strong>{{.CustomerName}}</strong> ({{.CustomerEmail}})</p>
</div>
<div style="padding:16px 32px;">
<div style="border-radius:8px;border-left:{{if .Closed}}4px solid #22C55E{{else}}4px solid #EF4444{{end}};padding:8px 16px;">
<p style="font-weight:600;margin:4px 0;">Original message:</p>
<p style="margin:8px 0;white-space:pre-wrap;">{{.OriginalMessage}}</p>
{{- if .ReplyMessage}}
<hr style="margin:12px 0;">
<p style="font-weight:600;margin:4px 0;">Reply:</p>
<p style="margin:8px 0;white-space:pre-wrap;">{{.ReplyMessage}}</p>
{{- end}}
</div>
</div>
{{- if .CustomerLinks}}
<div style="padding:0 32px 8px;font-size:14px;">
{{- range .CustomerLinks}}
<a href="{{.URL}}" style="color:#007bff;text-decoration:none;margin-right:12px;">{{.Label}}</a>
{{- end}}
</div>
{{- end}}
<div style="padding:4px 32px 20px;">
<a href="{{.ConversationLink}}" style="color:#007bff;text-decoration:none;font-weight:500;">View conversation &rarr;</a>
{{- if and .Closed .ReplyAuthor}}
<p style="font-size:14px;color:#22C55E;margin-top:8px;">&#10003; Closed by {{.ReplyAuthor}}</p>
{{- end}}
</div>
</div>
</div>
</body>
</html>
`

var (
	plainBody = texttemplate.Must(texttemplate.New("vip-plain").Parse(plainTemplate))
	htmlBody  = htmltemplate.Must(htmltemplate.New("vip-html").Parse(htmlTemplate))
)

// Render returns the plain text and HTML bodies
func (n *Notification) Render() (string, string, error) {
	var plain, html bytes.Buffer
	if err := plainBody.Execute(&plain, n); err != nil {
		return "", "", fmt.Errorf("failed to render plain text body: %w", err)
	}
	if err := htmlBody.Execute(&html, n); err != nil {
		return "", "", fmt.Errorf("failed to render html body: %w", err)
	}
	return plain.String(), html.String(), nil
}

// ConversationLink builds the dashboard link of a conversation
func ConversationLink(baseURL, slug string) string {
	return fmt.Sprintf("%s/conversations?id=%s", baseURL, url.QueryEscape(slug))
}

// displayLinks title-cases the link labels for display
func displayLinks(links []models.CustomerLink) []models.CustomerLink {
	if len(links) == 0 {
		return nil
	}
	out := make([]models.CustomerLink, len(links))
	for i, link := range links {
		out[i] = models.CustomerLink{Label: utils.TitleCase(link.Label), URL: link.URL}
	}
	return out
}
