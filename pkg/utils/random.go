package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

const alphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandomString returns an alphanumeric id, safe to embed in URLs and
// OAuth1 parameters without escaping.
func RandomString(length int) (string, error) {
	return gonanoid.Generate(alphanumeric, length)
}
