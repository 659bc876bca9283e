package draft

import (
	"strings"
	"text/template"

	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/pkg/formatting"
)

var subjects = map[Outcome]string{
	OutcomeApproveRefund: "Your refund has been approved",
	OutcomeDeny:          "An update on your request",
	OutcomeEscalate:      "We're reviewing your request",
}

var bodies = template.Must(template.New("body").Parse(`
{{- define "approve_refund" -}}
{{.Greeting}} we've approved a refund of {{.Amount}}{{if .OrderID}} for order {{.OrderID}}{{end}}. It will be returned to your original payment method.
{{- end}}
{{- define "deny" -}}
{{.Greeting}} we're unable to approve this request: {{.Reason}}.
{{- end}}
{{- define "escalate" -}}
{{.Greeting}} a specialist is reviewing your request{{if .OrderID}} about order {{.OrderID}}{{end}} and will follow up with you shortly.
{{- end}}
{{- define "email" -}}
Hello,

{{.Content}}

Kind regards,
Customer Support
{{- end}}
`))

type bodyData struct {
	Greeting string
	Amount   string
	OrderID  string
	Reason   string
	Content  string
}

func render(req *intake.Request, outcome Outcome, channel intake.Channel, reason string) (subject, body string, err error) {
	data := bodyData{
		Greeting: "Thanks for reaching out,",
		Amount:   formatting.FormatMoney(req.Payload.Amount, req.Payload.Currency),
		OrderID:  req.Payload.OrderID,
		Reason:   reason,
	}

	var content strings.Builder
	if err := bodies.ExecuteTemplate(&content, string(outcome), data); err != nil {
		return "", "", err
	}
	if channel != intake.ChannelEmail {
		return "", content.String(), nil
	}

	data.Content = content.String()
	var email strings.Builder
	if err := bodies.ExecuteTemplate(&email, "email", data); err != nil {
		return "", "", err
	}
	return subjects[outcome], email.String(), nil
}
