package signedlink

import "net/url"

// Query parameter names of the signed-link wire format.
const (
	ParamSubject   = "id"
	ParamSignature = "sig"
)

// Link is the subject id and signature carried by a signed URL.
type Link struct {
	SubjectID string
	Signature string
}

// ParseQuery extracts a Link from URL query values. ok is false when either
// parameter is missing, empty, or repeated.
func ParseQuery(q url.Values) (Link, bool) {
	ids, sigs := q[ParamSubject], q[ParamSignature]
	if len(ids) != 1 || len(sigs) != 1 {
		return Link{}, false
	}
	if ids[0] == "" || sigs[0] == "" {
		return Link{}, false
	}
	return Link{SubjectID: ids[0], Signature: sigs[0]}, true
}

// Query encodes the link as query values.
func (l Link) Query() url.Values {
	return url.Values{
		ParamSubject:   {l.SubjectID},
		ParamSignature: {l.Signature},
	}
}
