// Package httpmw provides the HTTP middleware that runs ahead of the
// per-route security pipelines.
//
// httpserver.NewHandler chains them outermost first: security headers,
// recover, request ID, client IP, flood guard, OTel, trace headers, metrics
// and the request logger. Route annotation, the access log and the body cap
// run inside the chi router, where the route pattern is known.
//
// Request bodies, query strings and raw tokens are never logged.
package httpmw
