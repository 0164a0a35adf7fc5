package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// evaluationKeyPrefix marks workspace evaluation keys.
const evaluationKeyPrefix = "shm_"

// GenerateEvaluationKey creates the random key machine callers present to the
// live-evaluation endpoint on behalf of a workspace.
func GenerateEvaluationKey() (string, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate evaluation key: %w", err)
	}
	return evaluationKeyPrefix + hex.EncodeToString(secret), nil
}
