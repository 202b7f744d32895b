package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"
)

// sign computes a signature the way Twilio documents it: HMAC-SHA1 over the
// URL followed by the sorted POST parameters.
func sign(token, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + params.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	params := url.Values{"To": {"+18005551212"}, "CallSid": {"CA1234567890ABCDE"}, "Digits": {"1234"}}
	fullURL := "https://mycompany.com/myapp.php?foo=1&bar=2"
	sig := sign("12345", fullURL, params)

	if !ValidSignature("12345", fullURL, params, sig) {
		t.Fatalf("expected signature to validate")
	}
	if ValidSignature("other", fullURL, params, sig) || ValidSignature("12345", fullURL, params, "") {
		t.Fatalf("expected mismatches to fail")
	}
}

func TestValidSignature_ExplicitPort(t *testing.T) {
	params := url.Values{"CallSid": {"CA1"}}
	// Twilio may sign either form of the URL; both must pass.
	sig := sign("token", "https://calls.example.com:443/webhooks/twilio/status", params)
	if !ValidSignature("token", "https://calls.example.com/webhooks/twilio/status", params, sig) {
		t.Fatalf("expected signature over the port-qualified url to validate")
	}
}

func TestRequireSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(PathStatus, RequireSignature("token", "https://calls.example.com/"), func(c *gin.Context) {
		c.String(http.StatusOK, c.PostForm("CallSid"))
	})

	body := "CallSid=CA1&CallStatus=completed"
	params, _ := url.ParseQuery(body)
	sig := sign("token", "https://calls.example.com/webhooks/twilio/status?callId=c1", params)

	req := formRequest("/webhooks/twilio/status?callId=c1", body)
	req.Header.Set(HeaderSignature, sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "CA1" {
		t.Fatalf("expected signed request through, got %d %s", w.Code, w.Body.String())
	}

	req = formRequest("/webhooks/twilio/status?callId=c1", body)
	req.Header.Set(HeaderSignature, "bogus")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}
