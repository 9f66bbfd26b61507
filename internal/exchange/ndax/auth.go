package ndax

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
)

// nonceSource hands out strictly increasing nonces even when requests race.
type nonceSource struct {
	last atomic.Int64
}

func (n *nonceSource) Next() string {
	for {
		now := time.Now().UnixMicro()
		prev := n.last.Load()
		if now <= prev {
			now = prev + 1
		}
		if n.last.CompareAndSwap(prev, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}

// sign produces the venue signature: HMAC-SHA256 over nonce+uid+apiKey.
func sign(secret, nonce, uid, apiKey string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce + uid + apiKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// authFields builds the authentication parameter set shared by REST headers
// and the stream AuthenticateUser request.
func (c *Client) authFields() map[string]string {
	nonce := c.nonce.Next()
	return map[string]string{
		"Nonce":     nonce,
		"APIKey":    c.apiKey,
		"Signature": sign(c.secretKey, nonce, c.uid, c.apiKey),
		"UserId":    c.uid,
	}
}
