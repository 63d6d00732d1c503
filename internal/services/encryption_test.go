package services

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"strings"
	"sync"
	"testing"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func pkixPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal pkix: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func sampleRecords(n int) []ActivityRecord {
	out := make([]ActivityRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ActivityRecord{Date: "2025-03-01 12:00:00", Link: "https://www.tiktokv.com/share/video/7340000000000000000/"})
	}
	return out
}

func TestChunkEncryptorRoundTrip(t *testing.T) {
	priv := testPrivateKey(t)
	for _, even := range []bool{false, true} {
		enc, err := NewChunkEncryptor(pkixPEM(t, &priv.PublicKey), even)
		if err != nil {
			t.Fatalf("new encryptor: %v", err)
		}
		records := sampleRecords(12)
		chunks, err := enc.Encrypt(records)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		want, _ := json.Marshal(MinimizeRecords(records))
		if len(chunks) < 2 {
			t.Fatalf("expected several chunks for %d bytes, got %d", len(want), len(chunks))
		}
		got, err := DecryptChunks(priv, chunks)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("round trip mismatch (even=%v)", even)
		}
		back, err := DecryptRecords(priv, EncryptedPayload(chunks))
		if err != nil || len(back) != len(records) {
			t.Fatalf("decrypt records: %v %d", err, len(back))
		}
	}
}

func TestChunkEncryptorMaxChunkSize(t *testing.T) {
	priv := testPrivateKey(t)
	enc, err := NewChunkEncryptor(pkixPEM(t, &priv.PublicKey), false)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	if enc.MaxChunkSize() != 190 {
		t.Fatalf("max chunk size for 2048-bit key = %d, want 190", enc.MaxChunkSize())
	}
}

func TestChunkEncryptorAcceptsPKCS1AndEscapedNewlines(t *testing.T) {
	priv := testPrivateKey(t)
	pkcs1 := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey)}))
	if _, err := NewChunkEncryptor(pkcs1, false); err != nil {
		t.Fatalf("pkcs1: %v", err)
	}
	escaped := strings.ReplaceAll(pkixPEM(t, &priv.PublicKey), "\n", `\n`)
	if _, err := NewChunkEncryptor(escaped, false); err != nil {
		t.Fatalf("escaped: %v", err)
	}
}

func TestChunkEncryptorRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "not a key", "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n"} {
		_, err := NewChunkEncryptor(key, false)
		if !IsCode(err, ErrorCrypto) {
			t.Fatalf("key %q: expected crypto error, got %v", key, err)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestChunkEncryptorAbortsOnChunkFailure(t *testing.T) {
	priv := testPrivateKey(t)
	enc, err := NewChunkEncryptor(pkixPEM(t, &priv.PublicKey), false)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	enc.random = failingReader{}
	chunks, err := enc.Encrypt(sampleRecords(5))
	if chunks != nil || !IsCode(err, ErrorCrypto) {
		t.Fatalf("expected no chunks and crypto error, got %d chunks, %v", len(chunks), err)
	}
}

func TestSplitChunks(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 401)

	fill := SplitChunks(data, 190, false)
	if len(fill) != 3 || len(fill[0]) != 190 || len(fill[1]) != 190 || len(fill[2]) != 21 {
		t.Fatalf("fill chunks: %d", len(fill))
	}
	even := SplitChunks(data, 190, true)
	if len(even) != 3 || len(even[0]) != 134 || len(even[1]) != 134 || len(even[2]) != 133 {
		t.Fatalf("even chunks: %d %d %d", len(even[0]), len(even[1]), len(even[2]))
	}
	if !bytes.Equal(bytes.Join(even, nil), data) || !bytes.Equal(bytes.Join(fill, nil), data) {
		t.Fatalf("chunks do not reassemble")
	}
	if got := SplitChunks(nil, 190, true); len(got) != 1 || len(got[0]) != 0 {
		t.Fatalf("empty input should give one empty chunk")
	}
}
