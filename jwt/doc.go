// Package jwt wraps opaque session IDs in signed envelopes so a tampered or
// foreign token is rejected before any store lookup. The envelope carries no
// authorization data; the session record stays authoritative.
package jwt
