package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadWritesObjectAndReturnsPublicURL(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewFS(fs, "payment-proofs", "https://files.example.com/")

	url, err := p.Upload(context.Background(), []byte("%PDF-1.4"), "application/pdf", "Bank Transfer #12.PDF")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://files.example.com/payment-proofs/"), url)
	assert.True(t, strings.HasSuffix(url, "-bank-transfer-12.pdf"), url)

	key := strings.TrimPrefix(url, "https://files.example.com/")
	data, err := afero.ReadFile(fs, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestUploadDerivesExtensionFromContentType(t *testing.T) {
	p := NewFS(afero.NewMemMapFs(), "proofs", "http://local")
	url, err := p.Upload(context.Background(), []byte{1}, "image/png", "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "-proof.png"), url)
}

func TestUploadRejectsEmptyObject(t *testing.T) {
	p := NewFS(afero.NewMemMapFs(), "proofs", "http://local")
	_, err := p.Upload(context.Background(), nil, "image/png", "x.png")
	assert.ErrorIs(t, err, ErrEmptyObject)
}
