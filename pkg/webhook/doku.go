package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
)

const (
	HeaderClientID         = "Client-Id"
	HeaderRequestID        = "Request-Id"
	HeaderRequestTimestamp = "Request-Timestamp"
	HeaderSignature        = "Signature"

	signaturePrefix = "HMACSHA256="
)

// DokuRequest is the set of values covered by a DOKU signature.
type DokuRequest struct {
	ClientID  string
	RequestID string
	Timestamp string
	Target    string
}

// Digest is base64(SHA-256(body)).
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SignDoku returns the Signature header value for req and body. It serves
// both outbound API calls and the verification of inbound notifications.
func SignDoku(secret string, req DokuRequest, body []byte) string {
	component := fmt.Sprintf("Client-Id:%s\nRequest-Id:%s\nRequest-Timestamp:%s\nRequest-Target:%s\nDigest:%s",
		req.ClientID, req.RequestID, req.Timestamp, req.Target, Digest(body))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(component))
	return signaturePrefix + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyDoku checks the Signature header of a notification delivered to
// target (the request path, e.g. "/api/webhook/doku").
func VerifyDoku(secret string, header http.Header, target string, body []byte) error {
	if secret == "" {
		return ErrNotConfigured
	}
	req := DokuRequest{
		ClientID:  header.Get(HeaderClientID),
		RequestID: header.Get(HeaderRequestID),
		Timestamp: header.Get(HeaderRequestTimestamp),
		Target:    target,
	}
	got := header.Get(HeaderSignature)
	for name, v := range map[string]string{
		HeaderClientID:         req.ClientID,
		HeaderRequestID:        req.RequestID,
		HeaderRequestTimestamp: req.Timestamp,
		HeaderSignature:        got,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s", ErrMissingHeader, name)
		}
	}

	want := SignDoku(secret, req, body)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return fmt.Errorf("%w: signature mismatch", ErrVerificationFailed)
	}
	return nil
}
