// Package meeting derives the temporal status of class meetings and filters
// meeting and attendance-history collections by facet and free text.
//
// Everything here is pure: callers pass the reference instant explicitly and
// get new slices back. Functions are safe for concurrent use.
package meeting
