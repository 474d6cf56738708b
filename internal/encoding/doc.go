// Package encoding provides Accept header negotiation for generated
// response bodies.
//
// Redirect and error bodies are rendered as JSON, HTML or plain text
// depending on what the client prefers:
//
//	negotiator := encoding.NewNegotiator(
//	    []string{encoding.ContentTypeHTML, encoding.ContentTypeJSON, encoding.ContentTypeText},
//	    encoding.WithDefaultType(encoding.ContentTypeText),
//	)
//	contentType := negotiator.Negotiate(r.Header.Get("Accept"))
//
// # Thread Safety
//
// Negotiators are safe for concurrent use.
package encoding
