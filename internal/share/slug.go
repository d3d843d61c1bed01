package share

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const slugCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

var slugPattern = regexp.MustCompile(`^[a-z0-9]{4}-[a-z0-9]{2}$`)

// NewSlug returns a random share id shaped like "k3x9-a1".
func NewSlug() (string, error) {
	head, err := randomString(4)
	if err != nil {
		return "", err
	}
	tail, err := randomString(2)
	if err != nil {
		return "", err
	}
	return head + "-" + tail, nil
}

func ValidSlug(s string) bool { return slugPattern.MatchString(s) }

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(slugCharset)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = slugCharset[idx.Int64()]
	}
	return string(out), nil
}
