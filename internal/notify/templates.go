package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

const layoutTemplate = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
</head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;background-color:#f7f9fc;">
  <table role="presentation" style="width:100%;border-collapse:collapse;">
    <tr>
      <td align="center" style="padding:40px 0;">
        <table role="presentation" style="width:600px;max-width:100%;background-color:#ffffff;border-radius:12px;">
          <tr>
            <td style="padding:32px 40px 8px;text-align:center;">
              <h1 style="margin:0;color:#1a202c;font-size:24px;">{{.Product}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding:24px 40px 40px;color:#4a5568;font-size:16px;line-height:1.6;">
              {{template "body" .}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>{{end}}`

const verificationBody = `{{define "body"}}
<h2 style="color:#1a202c;">Verify your email</h2>
<p>Thanks for signing up. Confirm your email address to activate your account.</p>
<p><a href="{{.Link}}" style="display:inline-block;padding:12px 24px;background:#4f46e5;color:#ffffff;border-radius:8px;text-decoration:none;">Verify email</a></p>
<p>This link expires in 24 hours. If you did not create an account, you can ignore this email.</p>
{{end}}`

const resetBody = `{{define "body"}}
<h2 style="color:#1a202c;">Reset your password</h2>
<p>We received a request to reset the password for your account.</p>
<p><a href="{{.Link}}" style="display:inline-block;padding:12px 24px;background:#4f46e5;color:#ffffff;border-radius:8px;text-decoration:none;">Reset password</a></p>
<p>This link expires in 1 hour. If you did not request a reset, no action is needed.</p>
{{end}}`

const loginAlertBody = `{{define "body"}}
<h2 style="color:#1a202c;">New login detected</h2>
<p>We detected a new login to your account. If this was you, you can safely ignore this email.</p>
<table role="presentation" style="width:100%;border-collapse:collapse;background:#f7fafc;border-radius:8px;">
  <tr><td style="padding:8px 16px;font-weight:600;">Email:</td><td style="padding:8px 16px;">{{.Email}}</td></tr>
  <tr><td style="padding:8px 16px;font-weight:600;">Time:</td><td style="padding:8px 16px;">{{.Time}}</td></tr>
  <tr><td style="padding:8px 16px;font-weight:600;">IP Address:</td><td style="padding:8px 16px;">{{.IPAddress}}</td></tr>
  <tr><td style="padding:8px 16px;font-weight:600;vertical-align:top;">Device:</td><td style="padding:8px 16px;word-break:break-word;">{{.UserAgent}}</td></tr>
</table>
<p>If this wasn't you, reset your password immediately.</p>
{{end}}`

const passwordChangedBody = `{{define "body"}}
<h2 style="color:#1a202c;">Your password was changed</h2>
<p>The password for {{.Email}} was just changed and all sessions were signed out.</p>
<p>If you did not make this change, reset your password right away.</p>
{{end}}`

// templateData は全テンプレート共通のデータ。
type templateData struct {
	Title     string
	Product   string
	Email     string
	Link      string
	Time      string
	IPAddress string
	UserAgent string
}

type renderer struct {
	templates map[Kind]*template.Template
}

func newRenderer() *renderer {
	bodies := map[Kind]string{
		KindVerification:    verificationBody,
		KindPasswordReset:   resetBody,
		KindLoginAlert:      loginAlertBody,
		KindPasswordChanged: passwordChangedBody,
	}

	r := &renderer{templates: make(map[Kind]*template.Template, len(bodies))}
	for kind, body := range bodies {
		t := template.Must(template.New(string(kind)).Parse(layoutTemplate))
		r.templates[kind] = template.Must(t.Parse(body))
	}
	return r
}

func (r *renderer) render(kind Kind, data templateData) (string, error) {
	t, ok := r.templates[kind]
	if !ok {
		return "", fmt.Errorf("unknown template kind %q", kind)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", kind, err)
	}
	return buf.String(), nil
}
