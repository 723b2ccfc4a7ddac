package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dwsmith1983/contractsync/internal/app"
	"github.com/dwsmith1983/contractsync/internal/config"
	"github.com/dwsmith1983/contractsync/internal/telemetry"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	*app.Deps
	Telemetry *telemetry.Providers
}

// Flush exports buffered telemetry; call it before a handler returns.
func (d *Deps) Flush(ctx context.Context) {
	if err := d.Telemetry.Flush(ctx); err != nil {
		d.Logger.Warn("flushing telemetry", "error", err)
	}
}

// Init creates shared dependencies from environment variables. See
// ConfigFromEnv for the variables read.
func Init(ctx context.Context, service string) (*Deps, error) {
	logger := NewLogger()
	slog.SetDefault(logger)

	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.Setup(ctx, service, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	d, err := app.Build(ctx, cfg, logger.With("service", service))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return &Deps{Deps: d, Telemetry: tel}, nil
}

// NewLogger returns the JSON stderr logger used by every handler, at LOG_LEVEL
// (default info).
func NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "INFO"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ConfigFromEnv builds the project configuration from the Lambda environment.
// Reads: STORE_BACKEND, TABLE_NAME, AWS_REGION, REDIS_ADDR, REDIS_PASSWORD,
// SHEETS_SPREADSHEET_ID, SHEETS_RANGE, SHEETS_CREDENTIALS_SECRET, BUCKET,
// KEY_PREFIX, DOCUSIGN_*, CONNECT_HMAC_SECRET, NOTIFY_*, EVENT_BUS_NAME,
// DLQ_URL, SOURCE_QUEUE_URL, FOLLOWUP_*, STALE_AFTER, SWEEP_CONCURRENCY,
// SWEEP_LIMIT and OTEL_EXPORTER_OTLP_ENDPOINT.
func ConfigFromEnv() (*types.ProjectConfig, error) {
	cfg := &types.ProjectConfig{
		Store:        types.StoreBackend(envOrDefault("STORE_BACKEND", string(types.StoreDynamoDB))),
		Bucket:       os.Getenv("BUCKET"),
		KeyPrefix:    os.Getenv("KEY_PREFIX"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	switch cfg.Store {
	case types.StoreDynamoDB:
		tableName := os.Getenv("TABLE_NAME")
		region := os.Getenv("AWS_REGION")
		if tableName == "" {
			return nil, fmt.Errorf("TABLE_NAME environment variable required")
		}
		if region == "" {
			return nil, fmt.Errorf("AWS_REGION environment variable required")
		}
		cfg.DynamoDB = &types.DynamoDBConfig{TableName: tableName, Region: region}
	case types.StoreRedis:
		cfg.Redis = &types.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		}
	case types.StoreSheets:
		cfg.Sheets = &types.SheetsConfig{
			SpreadsheetID:     os.Getenv("SHEETS_SPREADSHEET_ID"),
			Sheet:             os.Getenv("SHEETS_RANGE"),
			CredentialsSecret: os.Getenv("SHEETS_CREDENTIALS_SECRET"),
		}
	}

	ds := &types.DocuSignConfig{
		AuthServer:       envOrDefault("DOCUSIGN_AUTH_SERVER", "account-d.docusign.com"),
		ClientID:         os.Getenv("DOCUSIGN_CLIENT_ID"),
		UserID:           os.Getenv("DOCUSIGN_USER_ID"),
		AccountID:        os.Getenv("DOCUSIGN_ACCOUNT_ID"),
		BasePath:         os.Getenv("DOCUSIGN_BASE_PATH"),
		ReturnURL:        os.Getenv("DOCUSIGN_RETURN_URL"),
		EmailSubject:     os.Getenv("DOCUSIGN_EMAIL_SUBJECT"),
		PrivateKeySecret: os.Getenv("DOCUSIGN_PRIVATE_KEY_SECRET"),
		ConnectSecret:    os.Getenv("CONNECT_HMAC_SECRET"),
	}
	if ds.ClientID != "" || ds.ConnectSecret != "" {
		cfg.DocuSign = ds
	}

	cfg.Notify = notifyFromEnv()

	if url := os.Getenv("DLQ_URL"); url != "" {
		cfg.DeadLetter = &types.DeadLetterConfig{QueueURL: url, SourceURL: os.Getenv("SOURCE_QUEUE_URL")}
	}
	if target := os.Getenv("FOLLOWUP_TARGET_ARN"); target != "" {
		cfg.Followup = &types.FollowupConfig{
			TargetARN: target,
			RoleARN:   os.Getenv("FOLLOWUP_ROLE_ARN"),
			After:     os.Getenv("FOLLOWUP_AFTER"),
			Group:     os.Getenv("FOLLOWUP_GROUP"),
		}
	}

	sw := &types.SweeperConfig{StaleAfter: os.Getenv("STALE_AFTER")}
	var err error
	if sw.Concurrency, err = envInt("SWEEP_CONCURRENCY"); err != nil {
		return nil, err
	}
	if sw.Limit, err = envInt("SWEEP_LIMIT"); err != nil {
		return nil, err
	}
	cfg.Sweeper = sw

	if err := config.Prepare(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

func notifyFromEnv() []types.NotifyConfig {
	var out []types.NotifyConfig
	if arn := os.Getenv("NOTIFY_SNS_TOPIC_ARN"); arn != "" {
		out = append(out, types.NotifyConfig{Type: types.NotifySNS, TopicARN: arn})
	}
	if from, to := os.Getenv("NOTIFY_EMAIL_FROM"), splitList(os.Getenv("NOTIFY_EMAIL_TO")); from != "" && len(to) > 0 {
		out = append(out, types.NotifyConfig{Type: types.NotifyEmail, From: from, To: to})
	}
	if bus := os.Getenv("EVENT_BUS_NAME"); bus != "" {
		out = append(out, types.NotifyConfig{Type: types.NotifyEventBridge, EventBus: bus})
	}
	if url := os.Getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		out = append(out, types.NotifyConfig{Type: types.NotifyWebhook, URL: url})
	}
	if bucket := os.Getenv("NOTIFY_S3_BUCKET"); bucket != "" {
		out = append(out, types.NotifyConfig{Type: types.NotifyS3, Bucket: bucket, Prefix: os.Getenv("NOTIFY_S3_PREFIX")})
	}
	if len(out) == 0 {
		out = append(out, types.NotifyConfig{Type: types.NotifyConsole})
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
