package signedlink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// MinSecretLength is the smallest accepted HMAC secret, in bytes.
const MinSecretLength = 32

// Encoding selects how a MAC is rendered into the sig query parameter.
type Encoding string

const (
	// EncodingHex renders the MAC as 64 lowercase hex characters.
	EncodingHex Encoding = "hex"
	// EncodingBase64URL renders the MAC as unpadded base64url.
	EncodingBase64URL Encoding = "base64url"
)

// Verifier checks link signatures against an ordered set of secrets.
//
// The first secret is the active signing secret; the rest are accepted for
// verification only so links survive a rotation window. A Verifier with no
// secrets rejects everything.
type Verifier struct {
	secrets  [][]byte
	encoding Encoding
}

// NewVerifier builds a Verifier. Secrets shorter than MinSecretLength are rejected.
func NewVerifier(encoding Encoding, secrets ...[]byte) (*Verifier, error) {
	if encoding == "" {
		encoding = EncodingHex
	}
	if encoding != EncodingHex && encoding != EncodingBase64URL {
		return nil, ErrUnknownEncoding
	}
	if len(secrets) == 0 {
		return nil, ErrNoSecret
	}

	v := &Verifier{encoding: encoding}
	for _, s := range secrets {
		if len(s) == 0 {
			return nil, ErrNoSecret
		}
		if len(s) < MinSecretLength {
			return nil, ErrSecretTooShort
		}
		v.secrets = append(v.secrets, cloneBytes(s))
	}
	return v, nil
}

// Verify reports whether signature is a valid MAC of subjectID under any
// configured secret.
func (v *Verifier) Verify(subjectID, signature string) bool {
	if subjectID == "" || signature == "" {
		return false
	}
	if v == nil || len(v.secrets) == 0 {
		return false
	}

	got, ok := decode(v.encoding, signature)
	if !ok || len(got) != sha256.Size {
		return false
	}
	// only the signer's exact rendering is accepted: no uppercase hex, no
	// stray bits in the final base64 character
	if encode(v.encoding, got) != signature {
		return false
	}

	valid := false
	for _, secret := range v.secrets {
		// every secret is checked so timing does not reveal which one matched
		if hmac.Equal(got, mac(secret, subjectID)) {
			valid = true
		}
	}
	return valid
}

func mac(secret []byte, subjectID string) []byte {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(subjectID))
	return h.Sum(nil)
}

func encode(enc Encoding, raw []byte) string {
	if enc == EncodingBase64URL {
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	return hex.EncodeToString(raw)
}

func decode(enc Encoding, s string) ([]byte, bool) {
	var (
		raw []byte
		err error
	)
	switch enc {
	case EncodingBase64URL:
		raw, err = base64.RawURLEncoding.Strict().DecodeString(s)
	default:
		raw, err = hex.DecodeString(s)
	}
	if err != nil {
		return nil, false
	}
	return raw, true
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
