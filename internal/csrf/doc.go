// Package csrf implements the double-submit token guard for state-changing
// requests.
//
// A token is bound to a session fingerprint (client ip and user agent), not
// to a server-side session, and only one token is live per fingerprint:
// issuing a new one replaces the old. Tokens are handed out in the
// X-CSRF-Token response header and a script-readable csrf-token cookie, and
// must be echoed back in the header, a csrf_token body field or a csrf_token
// query parameter. In double-submit mode the cookie must match as well.
package csrf
