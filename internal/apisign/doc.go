// Package apisign authenticates API requests signed with a per-client shared
// secret.
//
// A client sends its id, a request id, a timestamp and, optionally, an extras
// blob, together with a signature over those fields. The verifier rebuilds
// the canonical string, digests it with the client's secret and compares the
// result with the supplied signature.
//
// # Canonical string
//
// The signed fields are keyed by their configured names, sorted in byte
// order, written as key=value& and followed directly by the secret:
//
//	timestamp=1700000000&x-app-id=c1&x-request-id=r1&s3cr3t
//
// The digest is MD5 rendered as 32 uppercase hex characters.
//
// # Locations
//
// Fields are read from the query string, headers, a JSON body or a form body.
// Body locations require the matching content type. Query and header
// locations fall back to a JSON body for the extras field only.
//
// # Extras in JSON bodies
//
// A string extras value is signed as is. Objects, arrays, numbers and true
// are signed as their compact JSON text with keys in the order the client
// sent them, e.g. {"b":2,"a":[1,2]} with no spaces. Clients must sign that
// exact text. Empty values (null, "", 0, false, {} and []) are treated as
// absent and left out of the canonical string. The same emptiness rule
// applies to the required fields of a JSON body, which then fail with
// NO_SIGN_KEY.
//
// # Usage
//
//	verifier, err := apisign.NewVerifier(settings, apisign.NewStaticResolver(secrets), logger)
//	if err != nil {
//	    return err
//	}
//	router.Use(apisign.Middleware(verifier, nil))
//
// Failures are *errors.AppError values that match the Err* sentinels with
// errors.Is. StatusCode maps them to 403 for expired requests and 401 for
// everything else.
//
// Request ids are not deduplicated by default, so the pipeline alone does not
// stop a replayed request inside the freshness window. Install a
// RequestIDChecker for that.
package apisign
