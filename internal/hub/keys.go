package hub

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	keyCharset     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyLength      = 6
	maxKeyAttempts = 32
)

var ErrKeySpaceExhausted = errors.New("could not allocate a free room key")

// GenerateKey returns a random six character room key.
func GenerateKey() (string, error) {
	key := make([]byte, keyLength)
	for i := range key {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyCharset))))
		if err != nil {
			return "", err
		}
		key[i] = keyCharset[num.Int64()]
	}
	return string(key), nil
}

func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}
