// Package persistence provides a gorm/postgres audit trail for
// subscription lifecycle transitions and detected anomalies — not order
// book history, which this service treats as ephemeral in-memory state
// (§4.1/§4.2 Non-goals). Adapted from the teacher's domain/pgdb package.
package persistence

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store wraps a single gorm connection used for write-mostly audit logs.
type Store struct {
	DB *gorm.DB
}

func New(host string, port int, user, password, dbName, sslMode, timeZone string) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		host, port, user, password, dbName, sslMode, timeZone)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SubscriptionTransition{}, &AnomalyRecord{}); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// SubscriptionTransition is one SubscriptionManager state-change event
// (§4.5's state-change callback), persisted for audit/replay.
type SubscriptionTransition struct {
	ID        uint `gorm:"primaryKey"`
	Symbol    string
	EventType string
	OldState  string
	NewState  string
	OccurredAt time.Time
}

func (SubscriptionTransition) TableName() string { return "subscription_transitions" }

// AnomalyRecord is one detected MarketQualityAnalyzer anomaly (§4.4),
// persisted for audit/replay.
type AnomalyRecord struct {
	ID       uint `gorm:"primaryKey"`
	Symbol   string
	Kind     string
	Severity float64
	Detail   string
	TsMs     int64
}

func (AnomalyRecord) TableName() string { return "anomaly_records" }

// Close releases the underlying pooled SQL connection.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) RecordSubscriptionTransition(symbol, eventType, old, new string) error {
	return s.DB.Create(&SubscriptionTransition{
		Symbol: symbol, EventType: eventType, OldState: old, NewState: new, OccurredAt: time.Now(),
	}).Error
}

func (s *Store) RecordAnomaly(symbol, kind string, severity float64, detail string, tsMs int64) error {
	return s.DB.Create(&AnomalyRecord{
		Symbol: symbol, Kind: kind, Severity: severity, Detail: detail, TsMs: tsMs,
	}).Error
}

// RecentAnomalies returns the most recent anomaly records for a symbol.
func (s *Store) RecentAnomalies(symbol string, limit int) ([]AnomalyRecord, error) {
	var records []AnomalyRecord
	result := s.DB.Where("symbol = ?", symbol).Order("ts_ms DESC").Limit(limit).Find(&records)
	return records, result.Error
}
