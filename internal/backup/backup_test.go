package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "")
	assert.False(t, Enabled())

	t.Setenv("MINIO_ENDPOINT", "https://minio.example.com")
	assert.True(t, Enabled())
}

func TestSnapshotObjectName(t *testing.T) {
	at := time.Date(2018, 6, 1, 12, 30, 45, 0, time.UTC)
	name := SnapshotObjectName("/var/lib/sktm/sktm.db", at)
	assert.Equal(t, "sktm.db.20180601T123045Z", name)
}

func TestNewClient_MissingEndpoint(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "")

	_, err := NewClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINIO_ENDPOINT")
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "https://minio.example.com")
	t.Setenv("MINIO_ACCESS_KEY", "")
	t.Setenv("MINIO_ACCESS_KEY_ID", "")
	t.Setenv("MINIO_SECRET_KEY", "")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "")

	_, err := NewClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINIO_ACCESS_KEY")
}

func TestNewClient_BadEndpointScheme(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "ftp://minio.example.com")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")

	_, err := NewClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be http or https")
}

func TestNewClient_Valid(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "https://minio.example.com:9000")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("MINIO_BUCKET", "ledger-backups")

	client, err := NewClient()
	require.NoError(t, err)
	assert.Equal(t, "ledger-backups", client.bucket)
}
