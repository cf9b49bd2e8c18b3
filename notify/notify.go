/*
Package notify delivers member-facing email. Delivery is fire-and-forget:
callers never fail an operation because a mail could not be sent.
*/
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"

	"go.uber.org/zap"
)

// Template names the canned messages the back office sends.
type Template string

const (
	TemplateWelcome         Template = "welcome"
	TemplateOTP             Template = "otp"
	TemplateWithdrawalReady Template = "withdrawal_ready"
	TemplateLoanApproved    Template = "loan_approved"
	TemplateLoanDisbursed   Template = "loan_disbursed"
)

// Notifier sends a templated message. Implementations must be safe for
// concurrent use. A false return means delivery failed; callers ignore it.
type Notifier interface {
	Send(ctx context.Context, to string, tpl Template, params map[string]string) bool
}

// =============================================================================
// TEMPLATES
// =============================================================================

var bodies = map[Template]*template.Template{
	TemplateWelcome: template.Must(template.New("welcome").Parse(
		"Subject: Welcome to the SACCO\r\n\r\nDear {{.name}},\r\n\r\nYour membership is active. Member number: {{.member_number}}.\r\n")),
	TemplateOTP: template.Must(template.New("otp").Parse(
		"Subject: Your login code\r\n\r\nYour one-time code is {{.code}}. It expires in 10 minutes.\r\n")),
	TemplateWithdrawalReady: template.Must(template.New("withdrawal").Parse(
		"Subject: Withdrawal processed\r\n\r\nDear {{.name}},\r\n\r\nYour withdrawal of UGX {{.amount}} has been processed. Reference: {{.reference}}.\r\n")),
	TemplateLoanApproved: template.Must(template.New("approved").Parse(
		"Subject: Loan approved\r\n\r\nDear {{.name}},\r\n\r\nYour loan of UGX {{.amount}} has been approved. First installment due {{.due_date}}.\r\n")),
	TemplateLoanDisbursed: template.Must(template.New("disbursed").Parse(
		"Subject: Loan disbursed\r\n\r\nDear {{.name}},\r\n\r\nUGX {{.amount}} has been disbursed. Reference: {{.reference}}.\r\n")),
}

// =============================================================================
// SMTP MAILER
// =============================================================================

// Mailer sends templated mail over SMTP.
type Mailer struct {
	addr string // host:port
	from string
	auth smtp.Auth
	log  *zap.Logger
}

func NewMailer(host string, port int, username, password, from string, log *zap.Logger) *Mailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
		auth: auth,
		log:  log,
	}
}

func (m *Mailer) Send(_ context.Context, to string, tpl Template, params map[string]string) bool {
	body, ok := bodies[tpl]
	if !ok {
		m.log.Warn("unknown mail template", zap.String("template", string(tpl)))
		return false
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\nTo: %s\r\n", m.from, to)
	if err := body.Execute(&buf, params); err != nil {
		m.log.Warn("mail template render failed", zap.String("template", string(tpl)), zap.Error(err))
		return false
	}

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, buf.Bytes()); err != nil {
		m.log.Warn("mail delivery failed",
			zap.String("to", to), zap.String("template", string(tpl)), zap.Error(err))
		return false
	}
	return true
}

// =============================================================================
// NOOP NOTIFIER - for tests and mail-less deployments
// =============================================================================

type Noop struct{}

func (Noop) Send(context.Context, string, Template, map[string]string) bool { return true }

// Recorder captures sends for assertions in tests.
type Recorder struct {
	Sent []RecordedSend
}

type RecordedSend struct {
	To       string
	Template Template
	Params   map[string]string
}

func (r *Recorder) Send(_ context.Context, to string, tpl Template, params map[string]string) bool {
	r.Sent = append(r.Sent, RecordedSend{To: to, Template: tpl, Params: params})
	return true
}
