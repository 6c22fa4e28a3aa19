package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Signer produces the shared-secret authentication headers for ingest and
// recovery calls. The server holds the same secret and rejects with
// 401/403 on mismatch.
type Signer struct {
	instanceID string
	secret     string
}

// NewSigner creates a new Signer instance
func NewSigner(instanceID, secret string) *Signer {
	return &Signer{
		instanceID: instanceID,
		secret:     secret,
	}
}

// GenerateHeaders creates the headers for a request.
// method: GET, POST
// path: /events or /state/{instanceId} (no host)
// body: json string (empty for GET)
func (s *Signer) GenerateHeaders(method, path, body string) map[string]string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

	// String to sign: timestamp + method + path + body
	payload := timestamp + method + path + body
	sign := computeHmacSha256(payload, s.secret)

	return map[string]string{
		"X-Audit-Instance":  s.instanceID,
		"X-Audit-Timestamp": timestamp,
		"X-Audit-Signature": sign,
		"Content-Type":      "application/json",
	}
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
