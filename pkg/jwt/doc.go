// Package jwt signs and verifies compact HS256 tokens of the form
// base64url(header).base64url(claims).base64url(signature).
//
// A Service holds a single HMAC-SHA256 key and accepts any JSON-serialisable
// claims value. Claims types may implement Validate(now time.Time) error to
// have their temporal fields checked during Parse.
//
// Decode reads the claims of a token without checking its signature. It is
// meant for advisory, display-only use where the caller cannot verify (for
// example, a client reading its own token); authorization decisions must use
// Parse.
//
// Middleware extracts a bearer token from the request, verifies it into a
// typed claims value and stores both in the request context.
//
//	svc, err := jwt.NewFromString(os.Getenv("ACCESS_TOKEN_SECRET"))
//	if err != nil {
//		return err
//	}
//
//	token, err := svc.Generate(claims)
//	...
//	var got Claims
//	if err := svc.Parse(token, &got); err != nil {
//		return err
//	}
package jwt
