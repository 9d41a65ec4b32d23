package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lifelink/lifelink/internal/config"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/blobstore"
	"github.com/lifelink/lifelink/internal/platform/db"
	"github.com/lifelink/lifelink/internal/platform/events"
	"github.com/lifelink/lifelink/internal/platform/middleware"
)

// revocationSweep is how often the in-memory revocation store drops expired JTIs.
const revocationSweep = 5 * time.Minute

// withPool loads config, opens a pool for the duration of fn and closes it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func tokenConfig(cfg *config.Config) auth.TokenConfig {
	return auth.TokenConfig{
		Secret:     cfg.SigningKey(),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
}

// newRevocationStore uses redis when redisURL is set and memory otherwise.
func newRevocationStore(ctx context.Context, redisURL string) (auth.RevocationStore, error) {
	if redisURL == "" {
		return auth.NewMemoryRevocationStore(revocationSweep), nil
	}
	store, err := auth.NewRedisRevocationStore(ctx, redisURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newPublisher returns a Kafka publisher when brokers are configured.
func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

// newBlobStore returns an S3 store when a bucket is configured, else a local
// directory served under /uploads.
func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.S3Bucket != "" {
		s3, err := blobstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	local, err := blobstore.NewLocalStore(cfg.UploadDir, cfg.PublicURL)
	if err != nil {
		return nil, err
	}
	return local, nil
}

// auditRecorder forwards audit entries to the event feed.
func auditRecorder(emitter *events.Emitter) middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		emitter.Emit(context.Background(), events.TypeAuditAccess, entry.Resource, entry.ResourceID, entry.UserID, entry)
		return nil
	})
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
