package shorten

import (
	"crypto/rand"
	"errors"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// bytes at or above this value are rejected so every character is equally likely
const base62Cutoff = 256 - 256%len(base62Chars)

// SlugGenerator generates URL slugs.
type SlugGenerator interface {
	Generate(length int) (string, error)
}

type base62Generator struct{}

// NewBase62 returns a slug generator drawing from crypto/rand.
func NewBase62() SlugGenerator {
	return base62Generator{}
}

func (base62Generator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= base62Cutoff {
				continue
			}
			out = append(out, base62Chars[int(b)%len(base62Chars)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
