// Package protocol defines how bebop talks to servers: the Handler
// interface, the scheme Registry and the built-in Gemini handler.
//
// # Handlers and the registry
//
// Each URL scheme is served by one Handler. The Gemini handler is built in;
// other protocols (Gopher, Finger, local files) are plugins that register
// themselves through Registry.RegisterScheme exactly like third-party code
// would. The registry is filled at startup and frozen before the first
// navigation:
//
//	reg := protocol.NewRegistry()
//	_ = reg.Register(protocol.NewGeminiHandler(d, store, protocol.WithIdentities(store)))
//	_ = reg.RegisterScheme("gopher", gopher.New(d))
//	reg.Freeze()
//
// # Responses
//
// A handler returns a Response carrying the two-digit status code, its
// class and the meta string. Only success responses have a body. Handlers
// never follow redirects and never retry; the navigation engine decides
// what to do with each class.
//
// # Errors
//
// Connection failures are reported as *TransportError (matching
// ErrTransport) and malformed exchanges as *ProtocolError (matching
// ErrProtocolViolation). A certificate that does not match its pin is
// reported with the trust store's *tofu.PinMismatchError.
package protocol
