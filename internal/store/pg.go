// Package store persists whale promotions to PostgreSQL.
package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"feedcore/internal/whale"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Option defines connection options for PostgreSQL.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// PromotionRecord is the persisted form of one promotion event.
type PromotionRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Counterparty  string    `gorm:"size:128;index" json:"counterparty"`
	TotalNotional float64   `gorm:"not null" json:"totalNotional"`
	TradeCount    int       `gorm:"not null" json:"tradeCount"`
	PromotedAt    time.Time `gorm:"index" json:"promotedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (PromotionRecord) TableName() string { return "whale_promotions" }

// PromotionStore records promotions and serves recent history.
type PromotionStore struct {
	db *gorm.DB
}

// Open connects and migrates the promotions table.
func Open(option Option) (*PromotionStore, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&PromotionRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate promotions")
	}
	return &PromotionStore{db: db}, nil
}

// Record persists one promotion event.
func (s *PromotionStore) Record(ctx context.Context, p whale.Promotion) error {
	record := PromotionRecord{
		Counterparty:  p.Counterparty,
		TotalNotional: p.TotalNotional,
		TradeCount:    p.TradeCount,
		PromotedAt:    p.At,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return errors.Wrap(err, "insert promotion")
	}
	return nil
}

// Recent returns the latest promotions, newest first.
func (s *PromotionStore) Recent(ctx context.Context, limit int) ([]PromotionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []PromotionRecord
	err := s.db.WithContext(ctx).
		Order("promoted_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "query promotions")
	}
	return records, nil
}

func (s *PromotionStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
