package reputation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

const attestationValidity = 24 * time.Hour

// Signature accompanies a signed reputation payload.
type Signature struct {
	Value     string `json:"signature"`
	IssuedAt  string `json:"issuedAt"`
	ExpiresAt string `json:"expiresAt"`
}

// Signer attests reputation payloads with HMAC-SHA256 so downstream
// consumers holding the shared secret can verify a cached copy.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns nil when secret is empty; a nil Signer signs nothing.
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Sign computes the HMAC of payload's JSON encoding.
func (s *Signer) Sign(payload any) (*Signature, error) {
	if s == nil {
		return nil, nil
	}
	mac, err := s.mac(payload)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &Signature{
		Value:     mac,
		IssuedAt:  now.Format(time.RFC3339),
		ExpiresAt: now.Add(attestationValidity).Format(time.RFC3339),
	}, nil
}

// Verify checks signature against payload's JSON encoding.
func (s *Signer) Verify(payload any, signature string) bool {
	if s == nil {
		return false
	}
	expected, err := s.mac(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Signer) mac(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	m := hmac.New(sha256.New, s.secret)
	m.Write(data)
	return hex.EncodeToString(m.Sum(nil)), nil
}
