package classify

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
)

// slowQueryThreshold marks template store queries logged as slow.
const slowQueryThreshold = 200 * time.Millisecond

// templateRecord is the persisted form of a Template.
type templateRecord struct {
	ID           uint   `gorm:"primaryKey"`
	CustomerID   string `gorm:"size:128;not null;index:idx_customer_type"`
	DocumentType string `gorm:"size:64;not null;index:idx_customer_type"`
	TemplateID   string `gorm:"size:128;not null"`
	Features     []byte `gorm:"not null"` // little endian float32
	Metadata     string // JSON object
	CreatedAt    time.Time
}

func (templateRecord) TableName() string { return "customer_templates" }

// GormStore keeps templates in SQLite or MySQL.
type GormStore struct {
	db     *gorm.DB
	driver string
}

// OpenTemplateStore opens the configured database and migrates the schema.
func OpenTemplateStore(s conf.TemplateStoreSettings) (*GormStore, error) {
	var dialector gorm.Dialector
	switch s.Driver {
	case "sqlite":
		if dir := filepath.Dir(s.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storeError(err, s.Driver, "create-directory")
			}
		}
		dialector = sqlite.Open(s.Path)
	case "mysql":
		dialector = mysql.Open(s.DSN)
	default:
		return nil, errors.Newf("unsupported template store driver %q", s.Driver).
			Component("classify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return openStore(dialector, s.Driver)
}

func openStore(dialector gorm.Dialector, driver string) (*GormStore, error) {
	storeLogger := GetLogger().Module("store")
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(storeLogger, slowQueryThreshold),
	})
	if err != nil {
		return nil, storeError(err, driver, "open")
	}
	if err := db.AutoMigrate(&templateRecord{}); err != nil {
		return nil, storeError(err, driver, "migrate")
	}
	storeLogger.Debug("template store ready", logger.String("driver", driver))
	return &GormStore{db: db, driver: driver}, nil
}

// Save inserts one template.
func (s *GormStore) Save(ctx context.Context, customerID string, t Template) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return storeError(err, s.driver, "encode-metadata")
	}
	rec := templateRecord{
		CustomerID:   customerID,
		DocumentType: t.DocumentType,
		TemplateID:   t.TemplateID,
		Features:     encodeFeatures(t.Features),
		Metadata:     string(meta),
		CreatedAt:    t.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return storeError(err, s.driver, "save")
	}
	return nil
}

// LoadAll returns every template grouped by customer, in insertion order.
func (s *GormStore) LoadAll(ctx context.Context) (map[string][]Template, error) {
	var recs []templateRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, storeError(err, s.driver, "load")
	}

	out := make(map[string][]Template)
	for _, r := range recs {
		features, err := decodeFeatures(r.Features)
		if err != nil {
			return nil, storeError(fmt.Errorf("template %d: %w", r.ID, err), s.driver, "decode")
		}
		var meta map[string]string
		if r.Metadata != "" && r.Metadata != "null" {
			if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
				return nil, storeError(fmt.Errorf("template %d metadata: %w", r.ID, err), s.driver, "decode")
			}
		}
		out[r.CustomerID] = append(out[r.CustomerID], Template{
			TemplateID:   r.TemplateID,
			DocumentType: r.DocumentType,
			Features:     features,
			Metadata:     meta,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeError(err, s.driver, "close")
	}
	return sqlDB.Close()
}

func encodeFeatures(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeFeatures(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("feature blob of %d bytes is not a float32 array", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func storeError(err error, driver, op string) error {
	return errors.New(err).
		Component("classify").
		Category(errors.CategoryDatabase).
		Context("driver", driver).
		Context("operation", op).
		Build()
}
