package types

// ProjectConfig is the top-level contractsync.yaml configuration used by the
// CLI and the standalone HTTP server. Lambda handlers read the environment.
type ProjectConfig struct {
	Store      StoreBackend      `yaml:"store" json:"store"`
	Bucket     string            `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	KeyPrefix  string            `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
	DynamoDB   *DynamoDBConfig   `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty"`
	Redis      *RedisConfig      `yaml:"redis,omitempty" json:"redis,omitempty"`
	Sheets     *SheetsConfig     `yaml:"sheets,omitempty" json:"sheets,omitempty"`
	DocuSign   *DocuSignConfig   `yaml:"docusign,omitempty" json:"docusign,omitempty"`
	Server     *ServerConfig     `yaml:"server,omitempty" json:"server,omitempty"`
	Notify     []NotifyConfig    `yaml:"notify,omitempty" json:"notify,omitempty"`
	Sweeper    *SweeperConfig    `yaml:"sweeper,omitempty" json:"sweeper,omitempty"`
	DeadLetter *DeadLetterConfig `yaml:"deadLetter,omitempty" json:"deadLetter,omitempty"`
	Followup   *FollowupConfig   `yaml:"followup,omitempty" json:"followup,omitempty"`
	// OTLPEndpoint enables OpenTelemetry export when set.
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
}

// DynamoDBConfig holds DynamoDB record store settings.
type DynamoDBConfig struct {
	TableName   string `yaml:"tableName" json:"tableName"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // DynamoDB Local
	CreateTable bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// RedisConfig holds Redis/Valkey record store settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// SheetsConfig holds Google Sheets record store settings.
type SheetsConfig struct {
	SpreadsheetID     string `yaml:"spreadsheetId" json:"spreadsheetId"`
	Sheet             string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	CredentialsFile   string `yaml:"credentialsFile,omitempty" json:"credentialsFile,omitempty"`
	CredentialsSecret string `yaml:"credentialsSecret,omitempty" json:"credentialsSecret,omitempty"`
}

// DocuSignConfig holds e-signature provider settings.
type DocuSignConfig struct {
	AuthServer       string `yaml:"authServer" json:"authServer"` // e.g. account-d.docusign.com
	ClientID         string `yaml:"clientId" json:"clientId"`
	UserID           string `yaml:"userId" json:"userId"`
	AccountID        string `yaml:"accountId,omitempty" json:"accountId,omitempty"`
	BasePath         string `yaml:"basePath,omitempty" json:"basePath,omitempty"`
	PrivateKeyFile   string `yaml:"privateKeyFile,omitempty" json:"privateKeyFile,omitempty"`
	PrivateKeySecret string `yaml:"privateKeySecret,omitempty" json:"privateKeySecret,omitempty"`
	ReturnURL        string `yaml:"returnUrl,omitempty" json:"returnUrl,omitempty"`
	EmailSubject     string `yaml:"emailSubject,omitempty" json:"emailSubject,omitempty"`
	// ConnectSecret is the Secrets Manager id of the Connect HMAC key;
	// ConnectKey is the key itself, for local use.
	ConnectSecret string `yaml:"connectSecret,omitempty" json:"connectSecret,omitempty"`
	ConnectKey    string `yaml:"connectKey,omitempty" json:"connectKey,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
	// APIKey guards the record lookup endpoints when set.
	APIKey string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
}

// SweeperConfig configures backfill and stale-envelope polling.
type SweeperConfig struct {
	StaleAfter  string `yaml:"staleAfter,omitempty" json:"staleAfter,omitempty"` // e.g. "72h"
	Concurrency int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Limit       int    `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// DeadLetterConfig names the ingestion queues.
type DeadLetterConfig struct {
	QueueURL  string `yaml:"queueUrl" json:"queueUrl"`
	SourceURL string `yaml:"sourceUrl,omitempty" json:"sourceUrl,omitempty"`
}

// FollowupConfig schedules a one-shot status check after each ingestion.
type FollowupConfig struct {
	TargetARN string `yaml:"targetArn" json:"targetArn"`
	RoleARN   string `yaml:"roleArn" json:"roleArn"`
	After     string `yaml:"after,omitempty" json:"after,omitempty"` // e.g. "72h"
	Group     string `yaml:"group,omitempty" json:"group,omitempty"`
}
