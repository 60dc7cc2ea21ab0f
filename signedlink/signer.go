package signedlink

import (
	"net/url"
	"strings"
)

// Signer mints link signatures with the active secret of a Verifier.
type Signer struct {
	secret   []byte
	encoding Encoding
}

// NewSigner returns a Signer for the verifier's active (first) secret.
func NewSigner(v *Verifier) (*Signer, error) {
	if v == nil || len(v.secrets) == 0 {
		return nil, ErrNoSecret
	}
	return &Signer{secret: v.secrets[0], encoding: v.encoding}, nil
}

// Sign returns the encoded MAC of subjectID.
func (s *Signer) Sign(subjectID string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	if subjectID == "" {
		return "", ErrEmptySubject
	}
	return encode(s.encoding, mac(s.secret, subjectID)), nil
}

// Link returns base with the id and sig query parameters for subjectID.
// Existing query parameters on base are kept.
func (s *Signer) Link(base, subjectID string) (string, error) {
	sig, err := s.Sign(subjectID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range (Link{SubjectID: subjectID, Signature: sig}).Query() {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
