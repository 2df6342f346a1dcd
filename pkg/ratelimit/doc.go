// Package ratelimit provides token bucket rate limiting keyed by client.
//
// Buckets live in a go-cache store and are evicted after a period of
// inactivity. The HTTP middleware keys buckets by client IP and answers
// limited requests with 429 and a Retry-After header.
//
//	login := ratelimit.NewMiddleware("login", ratelimit.DefaultLoginConfig())
//	r.With(login.Handler).Post("/auth/login", h.Login)
package ratelimit
