package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"malmohomes/collector/internal/models"
)

// Database is the consolidated store: one row per listing, last observation wins.
type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&propertyRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	logger.WithField("path", dbPath).Info("Opened property database")
	return &Database{db: db, logger: logger}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsRetryable reports whether err is a transient SQLite lock conflict.
func IsRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// UpsertProperties stores a batch in one transaction. Existing listings are
// overwritten by the newer observation.
func (d *Database) UpsertProperties(ctx context.Context, properties []*models.Property) error {
	if len(properties) == 0 {
		return nil
	}

	records := make([]propertyRecord, len(properties))
	for i, p := range properties {
		records[i] = toRecord(p)
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "property_id"}},
			UpdateAll: true,
		}).Create(&records).Error
		if err != nil {
			return fmt.Errorf("failed to upsert properties: %w", err)
		}
		return nil
	})
}

// ErrPropertyNotFound is returned when no stored listing has the requested id.
var ErrPropertyNotFound = errors.New("property not found")

func (d *Database) GetProperty(ctx context.Context, propertyID string) (*models.Property, error) {
	var record propertyRecord
	err := d.db.WithContext(ctx).Where("property_id = ?", propertyID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query property %s: %w", propertyID, err)
	}
	return record.toProperty()
}

// PropertyFilter narrows listing queries. Zero values mean no filter.
type PropertyFilter struct {
	Kind   models.Kind
	City   string
	Limit  int
	Offset int
}

func (d *Database) scoped(ctx context.Context, filter PropertyFilter) *gorm.DB {
	q := d.db.WithContext(ctx).Model(&propertyRecord{})
	if filter.Kind != "" {
		q = q.Where("kind = ?", string(filter.Kind))
	}
	if filter.City != "" {
		q = q.Where("city = ?", filter.City)
	}
	return q
}

func (d *Database) GetProperties(ctx context.Context, filter PropertyFilter) ([]*models.Property, error) {
	var records []propertyRecord
	q := d.scoped(ctx, filter).Order("scraped_at DESC").Order("property_id")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}

	properties := make([]*models.Property, 0, len(records))
	for _, r := range records {
		p, err := r.toProperty()
		if err != nil {
			d.logger.WithError(err).WithField("property_id", r.PropertyID).Warn("Skipping unreadable stored property")
			continue
		}
		properties = append(properties, p)
	}
	return properties, nil
}

func (d *Database) GetPropertyStats(ctx context.Context, city string) (models.PropertyStats, error) {
	var stats models.PropertyStats
	err := d.scoped(ctx, PropertyFilter{City: city}).Select(`
		COUNT(*) AS total_properties,
		COALESCE(SUM(CASE WHEN kind = 'sold' THEN 1 ELSE 0 END), 0) AS total_sold,
		COALESCE(SUM(CASE WHEN kind = 'for_sale' THEN 1 ELSE 0 END), 0) AS total_active,
		COALESCE(AVG(asking_price), 0) AS average_asking_price,
		COALESCE(AVG(final_price), 0) AS average_final_price,
		COALESCE(AVG(price_change_pct), 0) AS average_price_change,
		COALESCE(AVG(COALESCE(price_per_sqm_final, price_per_sqm)), 0) AS average_price_per_sqm,
		COALESCE(AVG(days_on_market), 0) AS average_days_on_market`).
		Scan(&stats).Error
	if err != nil {
		return stats, fmt.Errorf("failed to compute property stats: %w", err)
	}
	return stats, nil
}

func (d *Database) CountProperties(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&propertyRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return count, nil
}

type propertyRecord struct {
	PropertyID string    `gorm:"primaryKey"`
	Kind       string    `gorm:"index;not null"`
	URL        string    `gorm:"not null"`
	ScrapedAt  time.Time `gorm:"index"`

	Address      *string
	City         *string `gorm:"index"`
	Neighborhood *string
	Latitude     *float64 `gorm:"index:idx_properties_coordinates"`
	Longitude    *float64 `gorm:"index:idx_properties_coordinates"`

	HousingForm  *string
	Tenure       *string
	Rooms        *float64
	LivingArea   *float64
	LotArea      *float64
	Floor        *string
	Elevator     *bool
	Balcony      *bool
	BuildingYear *int
	EnergyClass  *string

	AssociationName *string
	AssociationFee  *int64
	OperatingCost   *int64
	Description     *string

	AskingPrice      *int64
	FinalPrice       *int64
	PriceChange      *int64
	PriceChangePct   *float64
	PricePerSqm      *float64
	PricePerSqmFinal *float64
	SoldDate         *string
	ListedDate       *string
	DaysOnMarket     *int
	VisitCount       *int
	ViewingTimes     []string `gorm:"serializer:json"`

	UpdatedAt time.Time
}

func (propertyRecord) TableName() string {
	return "properties"
}

func toRecord(p *models.Property) propertyRecord {
	return propertyRecord{
		PropertyID:       p.PropertyID,
		Kind:             string(p.Kind),
		URL:              p.URL,
		ScrapedAt:        p.ScrapedAt.UTC(),
		Address:          p.Address,
		City:             p.City,
		Neighborhood:     p.Neighborhood,
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		HousingForm:      p.HousingForm,
		Tenure:           p.Tenure,
		Rooms:            p.Rooms,
		LivingArea:       p.LivingArea,
		LotArea:          p.LotArea,
		Floor:            p.Floor,
		Elevator:         p.Elevator,
		Balcony:          p.Balcony,
		BuildingYear:     p.BuildingYear,
		EnergyClass:      p.EnergyClass,
		AssociationName:  p.AssociationName,
		AssociationFee:   p.AssociationFee,
		OperatingCost:    p.OperatingCost,
		Description:      p.Description,
		AskingPrice:      p.AskingPrice,
		FinalPrice:       p.FinalPrice,
		PriceChange:      p.PriceChange,
		PriceChangePct:   p.PriceChangePct,
		PricePerSqm:      p.PricePerSqm,
		PricePerSqmFinal: p.PricePerSqmFinal,
		SoldDate:         dateString(p.SoldDate),
		ListedDate:       dateString(p.ListedDate),
		DaysOnMarket:     p.DaysOnMarket,
		VisitCount:       p.VisitCount,
		ViewingTimes:     p.ViewingTimes,
	}
}

func (r propertyRecord) toProperty() (*models.Property, error) {
	soldDate, err := parseDate(r.SoldDate)
	if err != nil {
		return nil, err
	}
	listedDate, err := parseDate(r.ListedDate)
	if err != nil {
		return nil, err
	}
	return &models.Property{
		PropertyID:       r.PropertyID,
		Kind:             models.Kind(r.Kind),
		URL:              r.URL,
		ScrapedAt:        r.ScrapedAt,
		Address:          r.Address,
		City:             r.City,
		Neighborhood:     r.Neighborhood,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		HousingForm:      r.HousingForm,
		Tenure:           r.Tenure,
		Rooms:            r.Rooms,
		LivingArea:       r.LivingArea,
		LotArea:          r.LotArea,
		Floor:            r.Floor,
		Elevator:         r.Elevator,
		Balcony:          r.Balcony,
		BuildingYear:     r.BuildingYear,
		EnergyClass:      r.EnergyClass,
		AssociationName:  r.AssociationName,
		AssociationFee:   r.AssociationFee,
		OperatingCost:    r.OperatingCost,
		Description:      r.Description,
		AskingPrice:      r.AskingPrice,
		FinalPrice:       r.FinalPrice,
		PriceChange:      r.PriceChange,
		PriceChangePct:   r.PriceChangePct,
		PricePerSqm:      r.PricePerSqm,
		PricePerSqmFinal: r.PricePerSqmFinal,
		SoldDate:         soldDate,
		ListedDate:       listedDate,
		DaysOnMarket:     r.DaysOnMarket,
		VisitCount:       r.VisitCount,
		ViewingTimes:     r.ViewingTimes,
	}, nil
}

func dateString(d *models.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDate(s *string) (*models.Date, error) {
	if s == nil {
		return nil, nil
	}
	d, err := models.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
