package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Compile-time interface verification.
var _ Notifier = (*EmailNotifier)(nil)

// emailBodyTemplate renders the HTML digest. Impact factors come pre-formatted
// so a missing journal shows "N/A" rather than a zero.
const emailBodyTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body>
<h2>Citation alerts for {{.CycleKey}}</h2>
<p>Mode: {{.Mode}}, threshold: {{.Threshold}}, generated {{.GeneratedAt}}.</p>
{{if .Papers}}
{{range .Papers}}
<hr>
<h3>{{.Title}}</h3>
<p>
<b>Journal:</b> {{.Journal}} (IF: {{.ImpactFactor}})<br>
<b>PMID:</b> <a href="https://pubmed.ncbi.nlm.nih.gov/{{.PMID}}/">{{.PMID}}</a>
{{if .DOI}}<br><b>DOI:</b> <a href="https://doi.org/{{.DOI}}">{{.DOI}}</a>{{end}}
{{if .PublishedDate}}<br><b>Published:</b> {{.PublishedDate}}{{end}}<br>
<b>Citations ({{$.Mode}}):</b> {{.MetricValue}}
</p>
<p>{{if .SummaryDegraded}}<i>{{.Summary}}</i>{{else}}{{.Summary}}{{end}}</p>
{{end}}
{{else}}
<p>No papers crossed the citation threshold this cycle.</p>
{{end}}
</body>
</html>
`

// emailPaperView is the template model for one paper.
type emailPaperView struct {
	Title           string
	Journal         string
	ImpactFactor    string
	PMID            string
	DOI             string
	PublishedDate   string
	MetricValue     int
	Summary         string
	SummaryDegraded bool
}

// emailPayloadView is the template model for the whole digest.
type emailPayloadView struct {
	CycleKey    string
	Mode        string
	Threshold   int
	GeneratedAt string
	Papers      []emailPaperView
}

// EmailConfig holds SMTP delivery settings.
// This is defined in the notify package to avoid importing the config package.
type EmailConfig struct {
	// Host is the SMTP server hostname.
	Host string
	// Port is the SMTP server port.
	Port int
	// Username is the SMTP username.
	Username string
	// Password is the SMTP password.
	Password string
	// From is the sender address.
	From string
	// To is the list of recipient addresses.
	To []string
	// SubjectPrefix is prepended to every subject line.
	SubjectPrefix string
}

// sendMailFunc matches smtp.SendMail, injected for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier delivers the payload as an HTML digest over SMTP.
type EmailNotifier struct {
	config   EmailConfig
	template *template.Template
	sendMail sendMailFunc
	logger   zerolog.Logger
}

// NewEmailNotifier creates an SMTP notifier with the given configuration.
func NewEmailNotifier(cfg EmailConfig, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		config:   cfg,
		template: template.Must(template.New("digest").Parse(emailBodyTemplate)),
		sendMail: smtp.SendMail,
		logger:   logger.With().Str("component", "email_notifier").Logger(),
	}
}

// Name returns the sink name.
func (n *EmailNotifier) Name() string {
	return "email"
}

// Deliver renders the payload and sends it to all configured recipients.
func (n *EmailNotifier) Deliver(ctx context.Context, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := n.renderBody(payload)
	if err != nil {
		return fmt.Errorf("failed to render email body: %w", err)
	}

	subject := n.subject(payload)
	msg := n.buildMessage(subject, body)

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	if err := n.sendMail(addr, auth, n.config.From, n.config.To, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info().
		Str("cycle_key", payload.CycleKey).
		Int("papers", len(payload.Papers)).
		Int("recipients", len(n.config.To)).
		Msg("email digest delivered")

	return nil
}

// subject builds the subject line. Empty payloads get an explicit marker so
// a quiet cycle is still visible in the inbox.
func (n *EmailNotifier) subject(payload Payload) string {
	if len(payload.Papers) == 0 {
		return fmt.Sprintf("%s %s: no new papers", n.config.SubjectPrefix, payload.CycleKey)
	}
	return fmt.Sprintf("%s %s: %d paper(s) crossed the citation threshold", n.config.SubjectPrefix, payload.CycleKey, len(payload.Papers))
}

// renderBody fills the HTML template with the payload.
func (n *EmailNotifier) renderBody(payload Payload) (string, error) {
	view := emailPayloadView{
		CycleKey:    payload.CycleKey,
		Mode:        string(payload.Mode),
		Threshold:   payload.Threshold,
		GeneratedAt: payload.GeneratedAt.Format(time.RFC3339),
	}

	for _, paper := range payload.Papers {
		pv := emailPaperView{
			Title:           paper.Paper.Title,
			Journal:         paper.Paper.Journal,
			ImpactFactor:    FormatImpactFactor(paper.ImpactFactor),
			PMID:            paper.Paper.PMID,
			DOI:             paper.Paper.DOI,
			MetricValue:     paper.Measurement.Value(),
			Summary:         paper.Summary,
			SummaryDegraded: paper.SummaryDegraded,
		}
		if paper.Paper.PublishedDate != nil {
			pv.PublishedDate = paper.Paper.PublishedDate.Format("2006-01-02")
		}
		view.Papers = append(view.Papers, pv)
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// buildMessage assembles the RFC 5322 message with HTML content headers.
func (n *EmailNotifier) buildMessage(subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", n.config.From))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.config.To, ", ")))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}
