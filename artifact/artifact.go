// Package artifact describes completed export artifacts and the seam
// through which time-limited retrieval URLs are derived. The object
// store holding the artifact bytes is an external collaborator; only
// its location handle and URL derivation live here.
package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Location is the opaque handle to a stored artifact: a storage key and
// the artifact's size in bytes.
type Location struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Signer derives a time-limited retrieval URL for a stored artifact.
// Implementations typically delegate to the object store's presigning
// facility.
type Signer interface {
	SignURL(key string, ttl time.Duration) (string, error)
}

// HMACSigner produces presigned URLs of the form
// {base}/{key}?expires={unix}&signature={hmac} for deployments where the
// artifact host verifies signatures itself.
type HMACSigner struct {
	base   string
	secret []byte
	now    func() time.Time
}

// NewHMACSigner creates a signer rooted at baseURL using the given
// shared secret.
func NewHMACSigner(baseURL string, secret []byte) *HMACSigner {
	return &HMACSigner{
		base:   strings.TrimRight(baseURL, "/"),
		secret: secret,
		now:    time.Now,
	}
}

// SignURL implements Signer.
func (s *HMACSigner) SignURL(key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("artifact: sign url: empty key")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("artifact: sign url: non-positive ttl %v", ttl)
	}

	expires := s.now().UTC().Add(ttl).Unix()
	sig := s.signature(key, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", sig)

	return s.base + "/" + strings.TrimLeft(key, "/") + "?" + q.Encode(), nil
}

// Verify reports whether the given signature is valid for key and not
// yet expired. The artifact host calls this on retrieval.
func (s *HMACSigner) Verify(key string, expires int64, signature string) bool {
	if s.now().UTC().Unix() > expires {
		return false
	}
	expected := s.signature(key, expires)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *HMACSigner) signature(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
