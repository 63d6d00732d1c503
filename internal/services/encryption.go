package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"strings"
)

var (
	errNoPEMBlock = errors.New("no PEM block found")
	errNotRSA     = errors.New("key is not RSA")
)

// normalizePEM accepts keys pasted into environment variables with literal "\n".
func normalizePEM(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimSpace(s), `\n`, "\n"))
}

// ParsePublicKeyPEM reads a PKIX ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY") RSA key.
func ParsePublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(normalizePEM(s))
	if block == nil {
		return nil, errNoPEMBlock
	}
	if block.Type == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errNotRSA
	}
	return pub, nil
}

// ParsePrivateKeyPEM reads a PKCS#8 or PKCS#1 RSA private key.
func ParsePrivateKeyPEM(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(normalizePEM(s))
	if block == nil {
		return nil, errNoPEMBlock
	}
	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errNotRSA
	}
	return priv, nil
}

// ChunkEncryptor encrypts serialized activity records under an RSA public key
// with OAEP/SHA-256. Only the holder of the private key can read the result.
type ChunkEncryptor struct {
	pub    *rsa.PublicKey
	even   bool
	random io.Reader
}

// NewChunkEncryptor parses the public key. With even set, chunk sizes are
// balanced across the minimum chunk count instead of filling each to the max.
func NewChunkEncryptor(publicKeyPEM string, even bool) (*ChunkEncryptor, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, NewCryptoError("encryption public key missing", nil)
	}
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, NewCryptoError("invalid encryption public key", err)
	}
	e := &ChunkEncryptor{pub: pub, even: even, random: rand.Reader}
	if e.MaxChunkSize() <= 0 {
		return nil, NewCryptoError("encryption key too small for OAEP/SHA-256", nil)
	}
	return e, nil
}

// MaxChunkSize is the largest plaintext OAEP/SHA-256 accepts for this key.
func (e *ChunkEncryptor) MaxChunkSize() int {
	return e.pub.Size() - 2*sha256.Size - 2
}

// Encrypt minimizes and serializes records once, then encrypts the text chunk
// by chunk. The returned base64 chunks must be kept in order.
func (e *ChunkEncryptor) Encrypt(records []ActivityRecord) ([]string, error) {
	plain, err := json.Marshal(MinimizeRecords(records))
	if err != nil {
		return nil, NewCryptoError("serialize records", err)
	}
	return e.EncryptBytes(plain)
}

// EncryptBytes fails as a whole if any chunk fails.
func (e *ChunkEncryptor) EncryptBytes(plain []byte) ([]string, error) {
	parts := SplitChunks(plain, e.MaxChunkSize(), e.even)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		ct, err := rsa.EncryptOAEP(sha256.New(), e.random, e.pub, part, nil)
		if err != nil {
			return nil, NewCryptoError("encrypt chunk", err)
		}
		out = append(out, base64.StdEncoding.EncodeToString(ct))
	}
	return out, nil
}

// SplitChunks cuts data into pieces of at most limit bytes. With even set the
// pieces differ in length by at most one byte.
func SplitChunks(data []byte, limit int, even bool) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	n := (len(data) + limit - 1) / limit
	chunks := make([][]byte, 0, n)
	if !even {
		for i := 0; i < len(data); i += limit {
			end := i + limit
			if end > len(data) {
				end = len(data)
			}
			chunks = append(chunks, data[i:end])
		}
		return chunks
	}
	size, extra := len(data)/n, len(data)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		chunks = append(chunks, data[start:end])
		start = end
	}
	return chunks
}

// DecryptChunks reverses Encrypt and returns the concatenated plaintext.
func DecryptChunks(priv *rsa.PrivateKey, chunks []string) ([]byte, error) {
	var out []byte
	for _, c := range chunks {
		ct, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			return nil, NewCryptoError("decode chunk", err)
		}
		pt, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ct, nil)
		if err != nil {
			return nil, NewCryptoError("decrypt chunk", err)
		}
		out = append(out, pt...)
	}
	return out, nil
}

// DecryptRecords decrypts a payload and decodes the records it holds. Plain
// payloads are returned as is.
func DecryptRecords(priv *rsa.PrivateKey, p ActivityPayload) ([]ActivityRecord, error) {
	if p.Kind != PayloadEncrypted {
		return p.Records, nil
	}
	plain, err := DecryptChunks(priv, p.Chunks)
	if err != nil {
		return nil, err
	}
	var records []ActivityRecord
	if err := json.Unmarshal(plain, &records); err != nil {
		return nil, NewCryptoError("decode records", err)
	}
	return records, nil
}
