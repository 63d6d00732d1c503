package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

func TestDecryptExport(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	enc, err := services.NewChunkEncryptor(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), true)
	require.NoError(t, err)

	video := []services.ActivityRecord{{Date: "2025-03-01 12:00:00", Link: "https://www.tiktokv.com/share/video/1/"}}
	chunks, err := enc.Encrypt(video)
	require.NoError(t, err)
	sub := &services.Submission{
		ID:           "S1",
		Score:        7,
		VideoPayload: services.EncryptedPayload(chunks),
		LikedPayload: services.PlainPayload(nil),
	}

	wrapped, err := json.Marshal(map[string]any{"count": 1, "submissions": []*services.Submission{sub}})
	require.NoError(t, err)
	bare, err := json.Marshal([]*services.Submission{sub})
	require.NoError(t, err)

	for name, input := range map[string][]byte{"wrapped": wrapped, "bare": bare} {
		t.Run(name, func(t *testing.T) {
			out, err := decryptExport(bytes.NewReader(input), priv)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, "S1", out[0].ID)
			assert.Equal(t, 7, out[0].Score)
			assert.Equal(t, video, out[0].VideoList)
			assert.Empty(t, out[0].LikedList)
		})
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = decryptExport(bytes.NewReader(wrapped), other)
	assert.Error(t, err)

	_, err = decryptExport(strings.NewReader("{"), priv)
	assert.Error(t, err)
}
