package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `store: redis
bucket: contracts
redis:
  addr: localhost:6379
docusign:
  authServer: account-d.docusign.com
  clientId: client
  userId: user
  privateKeyFile: ./private.key
server:
  addr: ":3000"
notify:
  - type: console
  - type: sns
    topicArn: arn:aws:sns:us-east-1:1:contracts
sweeper:
  staleAfter: 72h
  concurrency: 8
`
	err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644)
	require.NoError(t, err)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.StoreRedis, cfg.Store)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "contractsync:", cfg.Redis.KeyPrefix)
	assert.Equal(t, types.DefaultKeyPrefix, cfg.KeyPrefix)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "client", cfg.DocuSign.ClientID)
	assert.Len(t, cfg.Notify, 2)
	assert.Equal(t, 72*time.Hour, StaleAfter(cfg))
	assert.Equal(t, 8, cfg.Sweeper.Concurrency)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, FileName), []byte("invalid: [yaml"), 0o644)
	require.NoError(t, err)

	_, err = Load(dir)
	assert.Error(t, err)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("store: dynamodb\ndynamodb:\n  tableName: contracts\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, types.DefaultKeyPrefix, cfg.KeyPrefix)
	assert.Zero(t, StaleAfter(cfg))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing store", "bucket: x\n", "store is required"},
		{"unknown store", "store: mongo\n", "unknown store"},
		{"dynamodb without config", "store: dynamodb\n", "dynamodb config is required"},
		{"dynamodb without table", "store: dynamodb\ndynamodb:\n  region: us-east-1\n", "tableName is required"},
		{"redis without addr", "store: redis\nredis:\n  db: 1\n", "redis.addr is required"},
		{"sheets without id", "store: sheets\nsheets:\n  sheet: Contratos\n", "spreadsheetId is required"},
		{
			"docusign without key",
			"store: redis\nredis:\n  addr: x\ndocusign:\n  clientId: c\n  userId: u\n",
			"privateKeyFile or docusign.privateKeySecret",
		},
		{
			"docusign webhook only without key",
			"store: redis\nredis:\n  addr: x\ndocusign:\n  authServer: account-d.docusign.com\n",
			"API credentials or a Connect key",
		},
		{
			"docusign without ids",
			"store: redis\nredis:\n  addr: x\ndocusign:\n  privateKeyFile: k\n",
			"clientId and docusign.userId",
		},
		{"webhook without url", "store: redis\nredis:\n  addr: x\nnotify:\n  - type: webhook\n", "notify[0]: webhook url"},
		{"email without to", "store: redis\nredis:\n  addr: x\nnotify:\n  - type: email\n    from: a@b.co\n", "from and to"},
		{"unknown notify", "store: redis\nredis:\n  addr: x\nnotify:\n  - type: pager\n", "unknown type"},
		{"bad stale duration", "store: redis\nredis:\n  addr: x\nsweeper:\n  staleAfter: soon\n", "sweeper.staleAfter"},
		{"negative stale duration", "store: redis\nredis:\n  addr: x\nsweeper:\n  staleAfter: -1h\n", "must be positive"},
		{"followup without role", "store: redis\nredis:\n  addr: x\nfollowup:\n  targetArn: t\n", "followup.targetArn and followup.roleArn"},
		{"followup bad delay", "store: redis\nredis:\n  addr: x\nfollowup:\n  targetArn: t\n  roleArn: r\n  after: later\n", "followup.after"},
		{"dead letter without queue", "store: redis\nredis:\n  addr: x\ndeadLetter:\n  sourceUrl: q\n", "queueUrl is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
