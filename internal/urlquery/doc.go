// Package urlquery mutates the "cursor" query parameter of a pull URL at
// the string level rather than through net/url.Values, since a
// round-trip through that type does not guarantee preserving the
// encoding or ordering of the other, untouched query parameters.
package urlquery
