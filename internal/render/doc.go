// Package render turns terminal routing outcomes into HTTP responses.
//
// Redirect and error bodies are negotiated from the Accept header (HTML,
// JSON or plain text). Proxy outcomes are forwarded upstream and streamed
// back. Synthetic outcomes are the middleware's own response.
package render
