package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStaleCallsText(t *testing.T) {
	text := StaleCallsText([]StaleCall{
		{CallNumber: "2024-7", Priority: 1, CallType: "medical-emergency", Address: "Main stage", Age: 6*time.Minute + 400*time.Millisecond},
		{CallNumber: "2024-9", Priority: 3, CallType: "lost-person", Age: 90 * time.Second},
	})
	assert.Equal(t, "2 call(s) are still pending with no unit assigned:\n\n"+
		"2024-7  P1  medical-emergency  waiting 6m0s  (Main stage)\n"+
		"2024-9  P3  lost-person  waiting 1m30s\n", text)
}

func TestRenderAlertEmail_Escapes(t *testing.T) {
	out := RenderAlertEmail("Pending <calls>", "line one\n<b>line two</b>")
	assert.Contains(t, out, "<h1>Pending &lt;calls&gt;</h1>")
	assert.Contains(t, out, "line one<br>&lt;b&gt;line two&lt;/b&gt;")
}
