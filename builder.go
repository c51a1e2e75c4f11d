package authflow

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/pathlight/authflow/internal/audit"
)

// Builder defines a public type used by authflow APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	provider   IdentityProvider
	storage    Storage
	httpClient *http.Client
	auditSink  AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityProvider describes the withidentityprovider operation and its observable behavior.
//
// WithIdentityProvider may return an error when input validation, dependency calls, or security checks fail.
// WithIdentityProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityProvider(provider IdentityProvider) *Builder {
	b.provider = provider
	return b
}

// WithStorage describes the withstorage operation and its observable behavior.
//
// WithStorage may return an error when input validation, dependency calls, or security checks fail.
// WithStorage does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithStorage(storage Storage) *Builder {
	b.storage = storage
	return b
}

// WithRedis backs the persisted client storage with a Redis client, keyed
// under [StorageConfig.RedisPrefix]. WithStorage takes precedence when both
// are set.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient describes the withhttpclient operation and its observable behavior.
//
// WithHTTPClient may return an error when input validation, dependency calls, or security checks fail.
// WithHTTPClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	// -------- STORAGE --------
	storage := b.storage
	if storage == nil {
		if b.redis != nil {
			storage = NewRedisStorage(b.redis, cfg.Storage.RedisPrefix)
		} else {
			storage = NewMemoryStorage()
		}
	}

	// -------- BACKEND CLIENT --------
	backend, err := newBackendClient(cfg.Backend, b.httpClient)
	if err != nil {
		return nil, err
	}

	controller := &Controller{
		config:   cfg,
		provider: b.provider,
		backend:  backend,
		storage:  storage,
		// Session starts Initializing: loading until the provider reports
		// whether an identity session exists.
		snap: Snapshot{IsLoading: true},
	}

	controller.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	controller.metrics = NewMetrics(cfg.Metrics)

	ctx := context.Background()

	if cfg.Storage.ScrubOnBuild {
		report := ScrubLegacyStorage(ctx, storage)
		if len(report.Removed) > 0 {
			controller.metrics.Add(MetricCleanupKeyRemoved, uint64(len(report.Removed)))
		}
		controller.emitAudit(ctx, auditEventStorageCleanup, true, "", "", "", nil, func() map[string]string {
			return map[string]string{
				"removed": strings.Join(report.Removed, ","),
				"unknown": strconv.Itoa(len(report.Unknown)),
			}
		})
	}

	controller.mfaVerifiedUntil = loadMFAVerifiedUntil(ctx, storage)
	controller.unsubscribe = b.provider.Subscribe(controller.handleSessionEvent)

	b.built = true

	return controller, nil
}
