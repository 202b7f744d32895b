package telephony

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	twclient "github.com/twilio/twilio-go/client"

	"care-call-scheduler/pkg/logger"
)

const HeaderSignature = "X-Twilio-Signature"

// ValidSignature checks a webhook signature against the full callback URL
// and its POST parameters.
func ValidSignature(authToken, fullURL string, params url.Values, got string) bool {
	if got == "" {
		return false
	}
	v := twclient.NewRequestValidator(authToken)
	return v.Validate(fullURL, flatten(params), got)
}

func flatten(params url.Values) map[string]string {
	out := make(map[string]string, len(params))
	for k, vs := range params {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// RequireSignature rejects webhook requests not signed with authToken.
// publicURL must be the base URL Twilio was given, since the signature
// covers the URL as Twilio saw it.
func RequireSignature(authToken, publicURL string) gin.HandlerFunc {
	publicURL = strings.TrimRight(publicURL, "/")
	validator := twclient.NewRequestValidator(authToken)
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		full := publicURL + c.Request.URL.RequestURI()
		sig := c.GetHeader(HeaderSignature)
		if sig == "" || !validator.Validate(full, flatten(c.Request.PostForm), sig) {
			logger.FromGin(c).Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
