// signing.go - Stand-in signing collaborator.
//
// Real deployments plug in an external XAdES/PKCS service behind the Signer
// interface. HashSigner is the development implementation: it wraps the
// payload in a marker envelope and derives the content hash, which is all
// the lifecycle needs to lock a document.
package fiscal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// HashSigner implements Signer without cryptography.
type HashSigner struct{}

func (HashSigner) Sign(_ context.Context, payload string, certRef string) (string, string, error) {
	if payload == "" {
		return "", "", errors.New("empty payload")
	}
	if certRef == "" {
		return "", "", errors.New("no signing certificate configured")
	}
	signed := "<signed cert=\"" + certRef + "\">" + payload + "</signed>"
	sum := sha256.Sum256([]byte(signed))
	return signed, hex.EncodeToString(sum[:]), nil
}
