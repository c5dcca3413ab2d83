package clob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Credentials is the key/secret/passphrase triple issued for the CLOB API.
type Credentials struct {
	APIKey        string
	APISecret     string
	APIPassphrase string
}

// Empty reports whether no credentials were configured.
func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.APISecret == "" || c.APIPassphrase == ""
}

// sign builds the request signature: base64url(HMAC-SHA256(secret, timestamp+method+path+body)).
// The secret itself is base64url-encoded as delivered by the venue.
func sign(secret, timestamp, method, path, body string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp + method + path + body))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// authHeaders returns the header set for a signed request.
func (c Credentials) authHeaders(method, path, body string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := sign(c.APISecret, ts, method, path, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"POLY-API-KEY":    c.APIKey,
		"POLY-SIGNATURE":  sig,
		"POLY-TIMESTAMP":  ts,
		"POLY-PASSPHRASE": c.APIPassphrase,
	}, nil
}
