package telephony

import (
	"strings"
	"testing"
)

func TestRenderGather(t *testing.T) {
	xml, err := RenderGather("How are you & family?", "/webhooks/twilio/speech?callId=c1", DefaultVoice)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Gather input="speech" speechTimeout="auto" action="/webhooks/twilio/speech?callId=c1" method="POST">`,
		`<Say voice="Polly.Joanna">How are you &amp; family?</Say>`,
		`<Redirect method="POST">/webhooks/twilio/speech?callId=c1</Redirect>`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
}

func TestRenderSayHangup(t *testing.T) {
	xml, err := RenderSayHangup("bye", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>bye</Say>") || !strings.Contains(xml, "<Hangup></Hangup>") {
		t.Fatalf("unexpected xml: %s", xml)
	}
}

func TestRenderMessage(t *testing.T) {
	xml, _ := RenderMessage("Thanks!")
	if !strings.Contains(xml, "<Message>Thanks!</Message>") {
		t.Fatalf("unexpected xml: %s", xml)
	}
	empty, _ := RenderMessage("")
	if strings.Contains(empty, "<Message") {
		t.Fatalf("expected no message verb: %s", empty)
	}
}
