// Package filestore persists session tokens in a JSON file, the on-disk
// counterpart of browser local storage. When a passphrase is configured the
// values are sealed with NaCl secretbox under a scrypt-derived key.
package filestore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-client/credstore"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	fileVersion = 1
	saltLength  = 16
	nonceLength = 24
	keyLength   = 32

	// scrypt cost parameters (N, r, p)
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var _ credstore.Store = (*FileStore)(nil)

// envelope is the on-disk document. Exactly one of Values or Sealed is set.
type envelope struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt,omitempty"`
	Sealed  string            `json:"sealed,omitempty"`
	Values  map[string]string `json:"values,omitempty"`
}

type FileStore struct {
	path string
	key  *[keyLength]byte
	salt []byte
	lock sync.Mutex
}

type Option func(*options)

type options struct {
	passphrase string
}

// WithPassphrase seals the file contents. An empty passphrase leaves the file in plain JSON.
func WithPassphrase(passphrase string) Option {
	return func(o *options) {
		o.passphrase = passphrase
	}
}

// New opens (without creating) the credential file at path.
func New(path string, opts ...Option) (*FileStore, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	fs := &FileStore{path: path}
	if o.passphrase == "" {
		return fs, nil
	}

	env, err := fs.readEnvelope()
	if err != nil {
		return nil, err
	}
	if env.Salt != "" {
		fs.salt, err = base64.StdEncoding.DecodeString(env.Salt)
		if err != nil {
			return nil, fmt.Errorf("[filestore New] decode salt: %w", autherrors.ErrStoreSealed)
		}
	} else {
		fs.salt = make([]byte, saltLength)
		if _, err := rand.Read(fs.salt); err != nil {
			return nil, fmt.Errorf("[filestore New] generate salt: %w", err)
		}
	}

	derived, err := scrypt.Key([]byte(o.passphrase), fs.salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("[filestore New] derive key: %w", err)
	}
	fs.key = new([keyLength]byte)
	copy(fs.key[:], derived)
	return fs, nil
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(_ context.Context, key string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	return f.write(values)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.write(values)
}

func (f *FileStore) readEnvelope() (envelope, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return envelope{Version: fileVersion}, nil
	}
	if err != nil {
		return envelope{}, fmt.Errorf("[filestore read] %s: %w", f.path, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("[filestore read] decode %s: %w", f.path, err)
	}
	return env, nil
}

func (f *FileStore) read() (map[string]string, error) {
	env, err := f.readEnvelope()
	if err != nil {
		return nil, err
	}

	if env.Sealed == "" {
		// A plain file is accepted even with a passphrase; the next write seals it.
		if env.Values == nil {
			env.Values = make(map[string]string)
		}
		return env.Values, nil
	}
	if f.key == nil {
		return nil, fmt.Errorf("[filestore read] file is sealed but no passphrase is set: %w", autherrors.ErrStoreSealed)
	}

	box, err := base64.StdEncoding.DecodeString(env.Sealed)
	if err != nil || len(box) < nonceLength {
		return nil, fmt.Errorf("[filestore read] corrupt sealed payload: %w", autherrors.ErrStoreSealed)
	}
	var nonce [nonceLength]byte
	copy(nonce[:], box[:nonceLength])
	plain, ok := secretbox.Open(nil, box[nonceLength:], &nonce, f.key)
	if !ok {
		return nil, fmt.Errorf("[filestore read] wrong passphrase or tampered file: %w", autherrors.ErrStoreSealed)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("[filestore read] decode sealed values: %w", err)
	}
	return values, nil
}

func (f *FileStore) write(values map[string]string) error {
	env := envelope{Version: fileVersion}
	if f.key == nil {
		env.Values = values
	} else {
		plain, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("[filestore write] encode values: %w", err)
		}
		var nonce [nonceLength]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("[filestore write] generate nonce: %w", err)
		}
		box := secretbox.Seal(nonce[:], plain, &nonce, f.key)
		env.Salt = base64.StdEncoding.EncodeToString(f.salt)
		env.Sealed = base64.StdEncoding.EncodeToString(box)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("[filestore write] encode envelope: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("[filestore write] create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("[filestore write] temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore write] %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore write] chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore write] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("[filestore write] rename: %w", err)
	}
	return nil
}
