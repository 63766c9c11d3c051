package apisign

// SignedRequest holds the signing fields read from one request. It lives for
// a single verification and is never shared.
type SignedRequest struct {
	AppID     string
	RequestID string
	Signature string
	Timestamp string

	// Data is the serialized extras blob. HasData distinguishes an absent
	// extras field from an empty one; only a non-empty blob is signed.
	Data    string
	HasData bool

	// AccessToken is only read when tokens are required.
	AccessToken string

	// timestampNotString marks a JSON body whose timestamp was not a JSON
	// string; such timestamps are rejected as malformed.
	timestampNotString bool
}

// Params returns the signed fields keyed by their configured names: app id,
// request id, timestamp and, when non-empty, the extras blob. The signature
// itself is never part of the signed set.
func (sr *SignedRequest) Params(s *Settings) map[string]string {
	params := map[string]string{
		s.AppIDName:     sr.AppID,
		s.RequestIDName: sr.RequestID,
		s.TimestampName: sr.Timestamp,
	}
	if sr.Data != "" {
		params[s.DataName] = sr.Data
	}
	return params
}

// checkPresence enforces that the four required fields are non-empty. The
// first missing one, in app id, request id, signature, timestamp order,
// decides the failure.
func (sr *SignedRequest) checkPresence(s *Settings) error {
	switch {
	case sr.AppID == "":
		return ErrNoAppID.Derive("Missing " + s.AppIDName)
	case sr.RequestID == "":
		return ErrNoRequestID.Derive("Missing " + s.RequestIDName)
	case sr.Signature == "":
		return ErrNoSignature.Derive("Missing " + s.SignatureName)
	case sr.Timestamp == "":
		return ErrNoTimestamp.Derive("Missing " + s.TimestampName)
	}
	return nil
}
