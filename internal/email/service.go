// Package email sends account and approval notices over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

const appName = "Blog Writer"

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-blogwriter"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type notice struct {
	AppName   string
	UserName  string
	Heading   string
	Body      string
	ActionURL string
	Action    string
	Footnote  string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	return s.sendNotice(to, "Verify your "+appName+" account", notice{
		UserName:  userName,
		Heading:   "Welcome, " + userName + "!",
		Body:      "Please verify your email address to activate your account.",
		ActionURL: verificationURL,
		Action:    "Verify Email Address",
		Footnote:  "This verification link will expire in 24 hours.",
	})
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	return s.sendNotice(to, "Reset your "+appName+" password", notice{
		UserName:  userName,
		Heading:   "Password Reset Request",
		Body:      "We received a request to reset your password. Use the link below to choose a new one.",
		ActionURL: resetURL,
		Action:    "Reset Password",
		Footnote:  "This reset link will expire in 1 hour.",
	})
}

func (s *Service) SendInviteEmail(to, inviterName, orgName, acceptURL string) error {
	return s.sendNotice(to, "You've been invited to "+orgName, notice{
		UserName:  to,
		Heading:   "Join " + orgName,
		Body:      inviterName + " invited you to collaborate on " + orgName + ".",
		ActionURL: acceptURL,
		Action:    "Accept Invitation",
		Footnote:  "This invitation link will expire in 24 hours.",
	})
}

func (s *Service) SendApprovalRequest(to, requesterName, postTitle, reviewURL string) error {
	return s.sendNotice(to, "Approval requested: "+postTitle, notice{
		UserName:  to,
		Heading:   "Review requested",
		Body:      requesterName + " asked you to review \"" + postTitle + "\".",
		ActionURL: reviewURL,
		Action:    "Review Post",
	})
}

func (s *Service) SendApprovalDecision(to, postTitle, status, reviewerName, comment, postURL string) error {
	body := reviewerName + " marked \"" + postTitle + "\" as " + strings.ReplaceAll(status, "_", " ") + "."
	if comment != "" {
		body += " Comment: " + comment
	}
	return s.sendNotice(to, "Review update: "+postTitle, notice{
		UserName:  to,
		Heading:   "Review update",
		Body:      body,
		ActionURL: postURL,
		Action:    "Open Post",
	})
}

func (s *Service) sendNotice(to, subject string, data notice) error {
	data.AppName = appName
	html, err := renderNotice(data)
	if err != nil {
		return fmt.Errorf("render notice template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, subject, html)
}

var parsedNotice = template.Must(template.New("notice").Parse(noticeTemplate))

func renderNotice(data notice) (string, error) {
	var buf bytes.Buffer
	if err := parsedNotice.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const noticeTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0f766e; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0f766e; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0f766e; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.Heading}}</h2>

    <p>{{.Body}}</p>
{{if .ActionURL}}
    <p>
        <a href="{{.ActionURL}}" class="button">{{.Action}}</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ActionURL}}</p>
{{end}}
    <div class="footer">
        {{if .Footnote}}<p>{{.Footnote}}</p>{{end}}
        <p>You received this message because of activity on your {{.AppName}} account.</p>
    </div>
</body>
</html>`
