package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// ErrSignatureMismatch is returned when no key in the keyring signed the file.
var ErrSignatureMismatch = errors.New("signature verification failed")

// Verifier checks detached OpenPGP signatures against a fixed keyring.
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier loads an armored or binary public keyring from path.
func NewVerifier(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return NewVerifierFromBytes(data)
}

// NewVerifierFromBytes parses an armored or binary public keyring.
func NewVerifierFromBytes(data []byte) (*Verifier, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return &Verifier{keyring: keyring}, nil
}

// VerifyFile checks sig (armored first, then binary) against the file at path.
func (v *Verifier) VerifyFile(path string, sig []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, f, bytes.NewReader(sig), nil)
	if err == nil {
		return nil
	}

	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		return fmt.Errorf("rewind file: %w", seekErr)
	}
	if _, err = openpgp.CheckDetachedSignature(v.keyring, f, bytes.NewReader(sig), nil); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	return nil
}
