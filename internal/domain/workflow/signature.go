package workflow

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Sealer encrypts signature text at rest. *crypto.Service satisfies it.
type Sealer interface {
	EncryptString(value string) ([]byte, error)
	DecryptString(value []byte) (string, error)
}

// Signer produces tamper-evidence checksums for signatures. The checksum is
// a keyed BLAKE2b-256 digest; it detects edits to stored rows but is not a
// non-repudiation signature.
type Signer struct {
	key    []byte
	sealer Sealer
}

func NewSigner(key string, sealer Sealer) (*Signer, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("SIGNATURE_KEY must be at most %d bytes", blake2b.Size)
	}
	var k []byte
	if key != "" {
		k = []byte(key)
	}
	return &Signer{key: k, sealer: sealer}, nil
}

func (s *Signer) Checksum(text, signerID string, signedAt time.Time, instanceID string) string {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// key length is checked in NewSigner
		panic(err)
	}
	h.Write([]byte(strings.Join([]string{text, signerID, signedAt.UTC().Format(time.RFC3339Nano), instanceID}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign builds the signature row for an action. SignatureText stays in
// clear on the returned value; SealedText is what gets persisted.
func (s *Signer) Sign(instanceID, actionID, signerID, text string, at time.Time) (Signature, error) {
	// timestamptz keeps microseconds
	at = at.UTC().Truncate(time.Microsecond)
	sig := Signature{
		InstanceID:    instanceID,
		StepActionID:  actionID,
		SignerID:      signerID,
		SignatureText: text,
		SignedAt:      at,
		Hash:          s.Checksum(text, signerID, at, instanceID),
		Verified:      true,
	}
	if s.sealer == nil {
		sig.SealedText = []byte(text)
		return sig, nil
	}
	sealed, err := s.sealer.EncryptString(text)
	if err != nil {
		return Signature{}, fmt.Errorf("seal signature text: %w", err)
	}
	sig.SealedText = sealed
	return sig, nil
}

// Open restores SignatureText from SealedText and recomputes the checksum.
func (s *Signer) Open(sig *Signature) error {
	text := string(sig.SealedText)
	if s.sealer != nil {
		plain, err := s.sealer.DecryptString(sig.SealedText)
		if err != nil {
			return fmt.Errorf("open signature text: %w", err)
		}
		text = plain
	}
	sig.SignatureText = text
	want := s.Checksum(text, sig.SignerID, sig.SignedAt, sig.InstanceID)
	sig.Verified = subtle.ConstantTimeCompare([]byte(want), []byte(sig.Hash)) == 1
	return nil
}
