// Package sanitizer normalizes free text that guests and admins attach to
// bookings: special requests, cancellation reasons and admin notes.
//
// All functions are idempotent. Invalid input never errors; it comes back
// cleaned, possibly empty.
package sanitizer
