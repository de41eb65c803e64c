package util

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKD so that visually identical passcodes typed on
// different keyboards hash identically.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
