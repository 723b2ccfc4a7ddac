// Package app builds the shared dependency graph used by the Lambda handlers,
// the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dwsmith1983/contractsync/internal/config"
	"github.com/dwsmith1983/contractsync/internal/connectsig"
	"github.com/dwsmith1983/contractsync/internal/deadletter"
	"github.com/dwsmith1983/contractsync/internal/envelope"
	"github.com/dwsmith1983/contractsync/internal/followup"
	"github.com/dwsmith1983/contractsync/internal/ingest"
	"github.com/dwsmith1983/contractsync/internal/notify"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
	"github.com/dwsmith1983/contractsync/internal/secrets"
	"github.com/dwsmith1983/contractsync/internal/store"
	ddbstore "github.com/dwsmith1983/contractsync/internal/store/dynamodb"
	redisstore "github.com/dwsmith1983/contractsync/internal/store/redis"
	sheetsstore "github.com/dwsmith1983/contractsync/internal/store/sheets"
	"github.com/dwsmith1983/contractsync/internal/sweeper"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Deps holds shared dependencies. Gateway, Ingest and Sweeper are nil when
// no e-signature provider credentials are configured; DeadLetter is nil
// without a queue.
type Deps struct {
	Config     *types.ProjectConfig
	Store      store.Store
	Gateway    envelope.Gateway
	Notifier   *notify.Dispatcher
	Verifier   *connectsig.Verifier
	Ingest     *ingest.Handler
	Reconcile  *reconcile.Handler
	Sweeper    *sweeper.Sweeper
	DeadLetter *deadletter.Queue
	Logger     *slog.Logger
}

// Build constructs Deps from cfg.
func Build(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Deps{Config: cfg, Logger: logger}
	sec := &lazySecrets{}

	st, err := NewStore(ctx, cfg, sec)
	if err != nil {
		return nil, err
	}
	d.Store = st

	d.Notifier, err = notify.NewDispatcher(cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("creating notifier: %w", err)
	}

	if ds := cfg.DocuSign; ds != nil {
		var keys []string
		if ds.ConnectKey != "" {
			keys = append(keys, ds.ConnectKey)
		}
		if ds.ConnectSecret != "" {
			v, err := sec.Get(ctx, ds.ConnectSecret)
			if err != nil {
				return nil, fmt.Errorf("resolving Connect HMAC key: %w", err)
			}
			keys = append(keys, splitKeys(string(v))...)
		}
		d.Verifier = connectsig.New(keys...)
	} else {
		d.Verifier = connectsig.New()
	}

	d.Reconcile = reconcile.New(st, d.Notifier, reconcile.WithLogger(logger))

	if cfg.DocuSign != nil && cfg.DocuSign.ClientID != "" {
		s3c, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}
		gw, err := newGateway(ctx, cfg.DocuSign, s3c, sec, logger)
		if err != nil {
			return nil, err
		}
		d.Gateway = gw

		opts := []ingest.Option{ingest.WithPrefix(cfg.KeyPrefix), ingest.WithLogger(logger)}
		if fu := cfg.Followup; fu != nil {
			after, _ := time.ParseDuration(fu.After)
			sched, err := followup.New(fu.TargetARN, fu.RoleARN, followup.WithDelay(after), followup.WithGroup(fu.Group))
			if err != nil {
				return nil, fmt.Errorf("creating follow-up scheduler: %w", err)
			}
			opts = append(opts, ingest.WithFollowup(sched))
		}
		d.Ingest = ingest.New(st, gw, opts...)

		swCfg := sweeper.Config{Bucket: cfg.Bucket, Prefix: cfg.KeyPrefix, StaleAfter: config.StaleAfter(cfg)}
		if sw := cfg.Sweeper; sw != nil {
			swCfg.Concurrency = sw.Concurrency
			swCfg.BatchSize = sw.Limit
		}
		d.Sweeper = sweeper.New(swCfg, st, gw, d.Ingest, d.Reconcile,
			sweeper.WithLister(s3c), sweeper.WithLogger(logger))
	}

	if dl := cfg.DeadLetter; dl != nil {
		q, err := deadletter.New(dl.QueueURL, deadletter.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating dead-letter queue: %w", err)
		}
		d.DeadLetter = q
	}

	return d, nil
}

// Close releases store connections.
func (d *Deps) Close() error {
	if c, ok := d.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SecretSource resolves a secret id to its value.
type SecretSource interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// NewStore creates the configured record store.
func NewStore(ctx context.Context, cfg *types.ProjectConfig, sec SecretSource) (store.Store, error) {
	switch cfg.Store {
	case types.StoreDynamoDB:
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when store is dynamodb")
		}
		s, err := ddbstore.New(cfg.DynamoDB)
		if err != nil {
			return nil, fmt.Errorf("creating DynamoDB store: %w", err)
		}
		if cfg.DynamoDB.CreateTable {
			if err := s.Start(ctx); err != nil {
				return nil, fmt.Errorf("starting DynamoDB store: %w", err)
			}
		}
		return s, nil
	case types.StoreRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when store is redis")
		}
		return redisstore.New(cfg.Redis), nil
	case types.StoreSheets:
		sc := cfg.Sheets
		if sc == nil {
			return nil, fmt.Errorf("sheets config is required when store is sheets")
		}
		var creds []byte
		if sc.CredentialsSecret != "" {
			v, err := sec.Get(ctx, sc.CredentialsSecret)
			if err != nil {
				return nil, fmt.Errorf("resolving sheets credentials: %w", err)
			}
			creds = v
		}
		s, err := sheetsstore.New(ctx, sc, creds)
		if err != nil {
			return nil, fmt.Errorf("creating sheets store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store: %q", cfg.Store)
	}
}

func newGateway(ctx context.Context, cfg *types.DocuSignConfig, s3c *s3.Client, sec SecretSource, logger *slog.Logger) (envelope.Gateway, error) {
	var raw []byte
	var err error
	switch {
	case cfg.PrivateKeySecret != "":
		raw, err = sec.Get(ctx, cfg.PrivateKeySecret)
	case cfg.PrivateKeyFile != "":
		raw, err = os.ReadFile(cfg.PrivateKeyFile)
	default:
		err = errors.New("no private key configured")
	}
	if err != nil {
		return nil, fmt.Errorf("loading DocuSign private key: %w", err)
	}
	key, err := secrets.DecodePEM(raw)
	if err != nil {
		return nil, fmt.Errorf("loading DocuSign private key: %w", err)
	}

	ds, err := envelope.NewDocuSign(cfg, key, envelope.NewS3Documents(s3c), envelope.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating DocuSign client: %w", err)
	}
	return envelope.NewBreakerGateway(ds, envelope.BreakerSettings{}, logger), nil
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// lazySecrets creates the Secrets Manager client on first use so that
// configurations without secrets never touch AWS.
type lazySecrets struct {
	once sync.Once
	r    *secrets.Resolver
	err  error
}

func (l *lazySecrets) Get(ctx context.Context, id string) ([]byte, error) {
	l.once.Do(func() {
		l.r, l.err = secrets.New(ctx)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.r.Get(ctx, id)
}

// splitKeys reads one Connect key per line. Connect allows several active
// keys while one is rotated.
func splitKeys(v string) []string {
	var keys []string
	for _, k := range strings.Split(v, "\n") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
