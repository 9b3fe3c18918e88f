// Package sanitizer provides input normalization functions for identity data.
//
// All normalization functions are idempotent - applying them multiple times
// produces the same result. Functions handle invalid input gracefully,
// typically by returning empty strings rather than errors.
//
// Normalization includes:
//   - Names: Collapse whitespace, lowercase, strip diacritics and punctuation
//   - Emails: Trim and lowercase (keys for matching and alias lookups)
//   - Phone numbers: Convert to E.164 format (+[country][number])
package sanitizer
