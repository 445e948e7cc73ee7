package templates

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// StaleCall is one row of the pending call alert
type StaleCall struct {
	CallNumber string
	Priority   int
	CallType   string
	Address    string
	Age        time.Duration
}

// RenderAlertEmail generates the HTML for a dispatch alert.
// bodyContent is plain text that gets HTML-escaped and has newlines converted to <br> tags.
func RenderAlertEmail(subject, bodyContent string) string {
	escaped := html.EscapeString(bodyContent)
	htmlBody := strings.ReplaceAll(escaped, "\n", "<br>")
	safeSubject := html.EscapeString(subject)

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>%s</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 0; background-color: #f3f4f6; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; }
    .header { background: #b91c1c; padding: 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 22px; font-weight: 700; }
    .content { padding: 30px; color: #111827; line-height: 1.6; font-size: 15px; font-family: monospace; }
    .footer { padding: 20px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid #e5e7eb; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      %s
    </div>
    <div class="footer">
      <p>Camp CAD dispatch alert. Open the dispatch console to assign units.</p>
    </div>
  </div>
</body>
</html>`, safeSubject, safeSubject, htmlBody)
}

// StaleCallsText lists calls still waiting for a unit, one per line
func StaleCallsText(calls []StaleCall) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d call(s) are still pending with no unit assigned:\n\n", len(calls))
	for _, c := range calls {
		fmt.Fprintf(&b, "%s  P%d  %s  waiting %s", c.CallNumber, c.Priority, c.CallType, c.Age.Round(time.Second))
		if c.Address != "" {
			fmt.Fprintf(&b, "  (%s)", c.Address)
		}
		b.WriteString("\n")
	}
	return b.String()
}
