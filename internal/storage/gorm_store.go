package storage

import (
	"context"
	"fmt"
	"slices"

	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/storage/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const keyFilter = "symbol = ? AND timeframe_minutes = ? AND version = ?"

var partialKeyColumns = []clause.Column{
	{Name: "symbol"},
	{Name: "timeframe_minutes"},
	{Name: "version"},
	{Name: "start_time_ms"},
}

// GormStore implements CandleStore on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open, migrated gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) forKey(ctx context.Context, key model.SeriesKey) *gorm.DB {
	return s.db.WithContext(ctx).Where(keyFilter, key.Symbol, key.TimeframeMinutes, key.Version)
}

// SaveCandle inserts with ON CONFLICT DO NOTHING and reports whether the row
// was written. A conflicting row is never updated.
func (s *GormStore) SaveCandle(ctx context.Context, key model.SeriesKey, c model.Candle) (bool, error) {
	if err := ValidateCandle(key, c); err != nil {
		return false, err
	}

	row := models.NewCandle(key, c)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, storageErr("save candle", key, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GetCandles reads the newest count rows and returns them oldest first.
func (s *GormStore) GetCandles(ctx context.Context, key model.SeriesKey, count int, endTimeMs *int64) ([]model.Candle, error) {
	if count <= 0 {
		return []model.Candle{}, nil
	}

	q := s.forKey(ctx, key)
	if endTimeMs != nil {
		q = q.Where("start_time_ms <= ?", *endTimeMs)
	}

	var rows []models.Candle
	if err := q.Order("start_time_ms DESC").Limit(count).Find(&rows).Error; err != nil {
		return nil, storageErr("get candles", key, err)
	}

	candles := make([]model.Candle, len(rows))
	for i, r := range rows {
		candles[i] = r.ToDomain()
	}
	slices.Reverse(candles)
	return candles, nil
}

func (s *GormStore) GetLatestCandle(ctx context.Context, key model.SeriesKey) (*model.Candle, error) {
	var rows []models.Candle
	if err := s.forKey(ctx, key).Order("start_time_ms DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, storageErr("get latest candle", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := rows[0].ToDomain()
	return &c, nil
}

// SavePartialCandle upserts the forming candle for its start time.
func (s *GormStore) SavePartialCandle(ctx context.Context, key model.SeriesKey, c model.Candle) (bool, error) {
	if err := ValidateCandle(key, c); err != nil {
		return false, err
	}

	row := models.NewPartialCandle(key, c)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   partialKeyColumns,
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
		}).
		Create(&row)
	if res.Error != nil {
		return false, storageErr("save partial", key, res.Error)
	}
	return true, nil
}

func (s *GormStore) GetPartialCandle(ctx context.Context, key model.SeriesKey) (*model.Candle, error) {
	var rows []models.PartialCandle
	if err := s.forKey(ctx, key).Order("start_time_ms DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, storageErr("get partial", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := rows[0].ToDomain()
	return &c, nil
}

func (s *GormStore) DeletePartialCandle(ctx context.Context, key model.SeriesKey, startTimeMs int64) (bool, error) {
	res := s.forKey(ctx, key).
		Where("start_time_ms = ?", startTimeMs).
		Delete(&models.PartialCandle{})
	if res.Error != nil {
		return false, storageErr("delete partial", key, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteCandles drops a whole series in one transaction. It exists so a
// version can be regenerated; it is not part of the scheduler's path.
func (s *GormStore) DeleteCandles(ctx context.Context, key model.SeriesKey) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(keyFilter, key.Symbol, key.TimeframeMinutes, key.Version).Delete(&models.Candle{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Where(keyFilter, key.Symbol, key.TimeframeMinutes, key.Version).Delete(&models.PartialCandle{}).Error
	})
	if err != nil {
		return 0, storageErr("delete candles", key, err)
	}
	return removed, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
