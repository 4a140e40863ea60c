// Package jwt signs and validates the access and refresh tokens minted by the
// engine. Both token kinds carry a purpose claim so one can never stand in for
// the other, and expiry failures are reported separately from every other
// validation failure.
package jwt
