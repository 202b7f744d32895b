package telephony

import (
	"bytes"
	"encoding/xml"
)

// Minimal TwiML builder; only the verbs the call flow uses.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Say           twimlSay
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlMessage struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

const DefaultVoice = "Polly.Joanna"

// RenderGather speaks text and listens for a spoken answer posted to action.
// If the caller stays silent, Twilio follows the redirect to the same action.
func RenderGather(text, action, voice string) (string, error) {
	return render(
		twimlGather{
			Input:         "speech",
			SpeechTimeout: "auto",
			Action:        action,
			Method:        "POST",
			Say:           twimlSay{Voice: voice, Text: text},
		},
		twimlRedirect{Method: "POST", URL: action},
	)
}

// RenderSayHangup speaks text and ends the call.
func RenderSayHangup(text, voice string) (string, error) {
	return render(twimlSay{Voice: voice, Text: text}, twimlHangup{})
}

// RenderMessage replies to an inbound message. An empty body renders an
// empty response, which sends nothing.
func RenderMessage(body string) (string, error) {
	if body == "" {
		return render()
	}
	return render(twimlMessage{Body: body})
}

func render(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
