// Package middleware provides caller identity resolution and rate
// limiting for the HTTP surface.
//
// Identity is delegated: an upstream gateway authenticates the session
// and forwards the user id in a trusted header. This package only
// lifts that id into the request context; permission checks are the
// rbac gate's job.
//
// The rate limiter is Redis-backed so limits hold across instances,
// and fails open on Redis trouble: throttling is protection for the
// public endpoints, not an authorization control.
package middleware
