package otp

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"hash"
	"strings"
)

// digestFunc maps a configured algorithm name to its constructor.
func digestFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported digest algorithm " + algorithm)
	}
}

// IteratedHash digests salt+value the configured number of times and
// returns the result base64-encoded. An iteration count below one is
// treated as one; callers wanting raw storage skip hashing entirely.
func IteratedHash(value, salt string, iterations int, algorithm string) (string, error) {
	df, err := digestFunc(algorithm)
	if err != nil {
		return "", err
	}
	if iterations < 1 {
		iterations = 1
	}

	data := []byte(salt + value)
	for i := 0; i < iterations; i++ {
		h := df()
		_, _ = h.Write(data)
		data = h.Sum(nil)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
