// Package sql stores vectors in SQLite or PostgreSQL through GORM. With
// PostgreSQL several front-end nodes share one cache, so a challenge issued
// by one node verifies on another.
package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/sip/av"
)

// vectorRow is one outstanding vector.
type vectorRow struct {
	IMPI    string `gorm:"column:impi;primaryKey;size:255"`
	Nonce   string `gorm:"column:nonce;primaryKey;size:255"`
	Vector  string `gorm:"column:vector;type:text;not null"`
	Created int64  `gorm:"column:created;not null"`       // unix nanoseconds
	Expires int64  `gorm:"column:expires;not null;index"` // unix nanoseconds
}

// TableName returns the table name for GORM.
func (vectorRow) TableName() string {
	return "auth_vectors"
}

// Store implements avstore.Store using GORM.
type Store struct {
	db     *gorm.DB
	config *Config
	opts   avstore.Options

	closeOnce sync.Once
	stop      chan struct{}
	stopped   chan struct{}
}

var _ avstore.Store = (*Store)(nil)

// New opens the database described by config, migrates the schema and
// starts the expiry sweeper.
func New(config *Config, opts avstore.Options) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch config.Type {
	case DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	case DatabaseTypeSQLite:
		// SQLite has a single writer; one connection serializes takes.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&vectorRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	s := &Store{
		db:      db,
		config:  config,
		opts:    opts,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.sweeper(config.CleanupInterval)

	logger.Info("SQL vector store opened", logger.KeyStoreType, string(config.Type))
	return s, nil
}

// Put implements avstore.Store.
func (s *Store) Put(ctx context.Context, impi, nonce string, v *av.Vector, ttl time.Duration) error {
	if err := avstore.CheckPut(impi, nonce, v, ttl); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	now := time.Now()
	row := vectorRow{
		IMPI:    impi,
		Nonce:   nonce,
		Vector:  string(data),
		Created: now.UnixNano(),
		Expires: now.Add(ttl).UnixNano(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.opts.MaxPerIdentity > 0 {
			if err := s.enforceCap(tx, impi, nonce, now); err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "impi"}, {Name: "nonce"}},
			DoUpdates: clause.AssignmentColumns([]string{"vector", "created", "expires"}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

// enforceCap deletes expired rows of impi, then the oldest live ones, until
// one more fits. Replacing an existing nonce never evicts.
func (s *Store) enforceCap(tx *gorm.DB, impi, nonce string, now time.Time) error {
	var existing int64
	if err := tx.Model(&vectorRow{}).
		Where("impi = ? AND nonce = ?", impi, nonce).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	if err := tx.Where("impi = ? AND expires <= ?", impi, now.UnixNano()).
		Delete(&vectorRow{}).Error; err != nil {
		return err
	}

	var live []vectorRow
	if err := tx.Select("nonce").
		Where("impi = ?", impi).
		Order("created ASC").
		Find(&live).Error; err != nil {
		return err
	}

	excess := len(live) - s.opts.MaxPerIdentity + 1
	if excess <= 0 {
		return nil
	}
	victims := make([]string, 0, excess)
	for _, r := range live[:excess] {
		victims = append(victims, r.Nonce)
	}
	return tx.Where("impi = ? AND nonce IN ?", impi, victims).Delete(&vectorRow{}).Error
}

// Take implements avstore.Store. The delete's affected row count decides
// which of several racing takes wins.
func (s *Store) Take(ctx context.Context, impi, nonce string) (*av.Vector, error) {
	var row vectorRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("impi = ? AND nonce = ?", impi, nonce).First(&row).Error; err != nil {
			return err
		}
		res := tx.Where("impi = ? AND nonce = ?", impi, nonce).Delete(&vectorRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return avstore.ErrNotFound
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, avstore.ErrNotFound):
		return nil, avstore.ErrNotFound
	default:
		return nil, fmt.Errorf("failed to take vector: %w", err)
	}

	if time.Now().UnixNano() >= row.Expires {
		return nil, avstore.ErrNotFound
	}

	v := new(av.Vector)
	if err := json.Unmarshal([]byte(row.Vector), v); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return v, nil
}

// Purge implements avstore.Store.
func (s *Store) Purge(ctx context.Context, impi string) (int, error) {
	res := s.db.WithContext(ctx).Where("impi = ?", impi).Delete(&vectorRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge vectors: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Healthcheck implements avstore.Store.
func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close stops the sweeper and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.stopped

		sqlDB, dbErr := s.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}

func (s *Store) sweeper(interval time.Duration) {
	defer close(s.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			n, err := s.sweep(context.Background())
			if err != nil {
				logger.Warn("Failed to sweep expired vectors", logger.KeyStoreType, string(s.config.Type), logger.Err(err))
				continue
			}
			if n > 0 {
				logger.Debug("Expired vectors evicted", logger.KeyStoreType, string(s.config.Type), logger.KeyEvicted, n)
			}
		}
	}
}

func (s *Store) sweep(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires <= ?", time.Now().UnixNano()).Delete(&vectorRow{})
	return res.RowsAffected, res.Error
}
