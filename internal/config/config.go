// Package config handles loading and validation of contractsync.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// FileName is the configuration file looked up by Load.
const FileName = "contractsync.yaml"

// DefaultServerAddr is used when server.addr is not set.
const DefaultServerAddr = ":8080"

// Load reads and parses contractsync.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*types.ProjectConfig, error) {
	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Prepare applies defaults to and validates a configuration assembled in
// code, such as one read from the environment.
func Prepare(cfg *types.ProjectConfig) error {
	applyDefaults(cfg)
	return validate(cfg)
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = types.DefaultKeyPrefix
	}
	if cfg.Server == nil {
		cfg.Server = &types.ServerConfig{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Redis != nil && cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "contractsync:"
	}
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Store {
	case "":
		return fmt.Errorf("store is required")
	case types.StoreDynamoDB:
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when store is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	case types.StoreRedis:
		if cfg.Redis == nil {
			return fmt.Errorf("redis config is required when store is redis")
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	case types.StoreSheets:
		if cfg.Sheets == nil {
			return fmt.Errorf("sheets config is required when store is sheets")
		}
		if cfg.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets.spreadsheetId is required")
		}
	default:
		return fmt.Errorf("unknown store %q", cfg.Store)
	}

	if ds := cfg.DocuSign; ds != nil {
		sends := ds.ClientID != "" || ds.UserID != "" || ds.PrivateKeyFile != "" || ds.PrivateKeySecret != ""
		switch {
		case sends && (ds.ClientID == "" || ds.UserID == ""):
			return fmt.Errorf("docusign.clientId and docusign.userId are required")
		case sends && ds.PrivateKeyFile == "" && ds.PrivateKeySecret == "":
			return fmt.Errorf("docusign.privateKeyFile or docusign.privateKeySecret is required")
		case !sends && ds.ConnectKey == "" && ds.ConnectSecret == "":
			return fmt.Errorf("docusign needs API credentials or a Connect key")
		}
	}

	for i, n := range cfg.Notify {
		if err := validateNotify(n); err != nil {
			return fmt.Errorf("notify[%d]: %w", i, err)
		}
	}

	if sw := cfg.Sweeper; sw != nil && sw.StaleAfter != "" {
		d, err := time.ParseDuration(sw.StaleAfter)
		if err != nil {
			return fmt.Errorf("sweeper.staleAfter: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("sweeper.staleAfter must be positive")
		}
	}
	if fu := cfg.Followup; fu != nil {
		if fu.TargetARN == "" || fu.RoleARN == "" {
			return fmt.Errorf("followup.targetArn and followup.roleArn are required")
		}
		if fu.After != "" {
			if _, err := time.ParseDuration(fu.After); err != nil {
				return fmt.Errorf("followup.after: %w", err)
			}
		}
	}
	if dl := cfg.DeadLetter; dl != nil && dl.QueueURL == "" {
		return fmt.Errorf("deadLetter.queueUrl is required")
	}
	return nil
}

func validateNotify(n types.NotifyConfig) error {
	switch n.Type {
	case types.NotifyConsole, types.NotifyEventBridge:
		return nil
	case types.NotifyWebhook:
		if n.URL == "" {
			return fmt.Errorf("webhook url is required")
		}
	case types.NotifySNS:
		if n.TopicARN == "" {
			return fmt.Errorf("sns topicArn is required")
		}
	case types.NotifyEmail:
		if n.From == "" || len(n.To) == 0 {
			return fmt.Errorf("email from and to are required")
		}
	case types.NotifyS3:
		if n.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown type %q", n.Type)
	}
	return nil
}

// StaleAfter returns the configured sweeper threshold, or zero for the default.
func StaleAfter(cfg *types.ProjectConfig) time.Duration {
	if cfg.Sweeper == nil || cfg.Sweeper.StaleAfter == "" {
		return 0
	}
	d, _ := time.ParseDuration(cfg.Sweeper.StaleAfter)
	return d
}
