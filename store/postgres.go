package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/data"
)

// Location is a distinct pair of coordinates.
type Location struct {
	LocationID uint    `gorm:"column:location_id;primaryKey;autoIncrement"`
	Latitude   float64 `gorm:"uniqueIndex:location_coordinates"`
	Longitude  float64 `gorm:"uniqueIndex:location_coordinates"`
}

// TableName implements gorm's tabler.
func (Location) TableName() string { return "location" }

// History is one row per (timestamp, rat). Throughput, channel and scan
// records for the same instant all land on the same row.
type History struct {
	Timestamp      time.Time `gorm:"primaryKey"`
	RAT            string    `gorm:"column:rat;primaryKey"`
	Throughput     int64
	NumBits        int64
	ChannelInfo    string
	ScanInfo       string
	Speed          float64
	Orientation    float64
	Moving         bool
	TxBitrate      int
	SignalStrength int
	LocationID     *uint
}

// TableName implements gorm's tabler.
func (History) TableName() string { return "history" }

// Tables lists the models managed by the Postgres sink.
var Tables = []interface{}{&Location{}, &History{}}

// Columns updated when a row for the same (timestamp, rat) exists.
var updateColumns = map[data.Kind][]string{
	data.Throughput: {"throughput", "num_bits", "speed", "orientation", "moving", "location_id"},
	data.Channel:    {"channel_info", "tx_bitrate", "signal_strength"},
	data.Scan:       {"scan_info"},
}

// Postgres persists records into the location and history tables.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to database")
	}
	return NewPostgres(db)
}

// NewPostgres wraps an open database and migrates the schema.
func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.Migrator().AutoMigrate(Tables...); err != nil {
		return nil, errors.Wrap(err, "cannot migrate schema")
	}
	return &Postgres{db: db}, nil
}

func historyRow(m *data.Measurement, locationID uint) History {
	h := History{
		Timestamp:      m.Time(),
		RAT:            m.RAT,
		Throughput:     int64(m.Throughput),
		NumBits:        int64(m.NumBits),
		ChannelInfo:    m.ChannelInfo,
		ScanInfo:       m.ScanInfo,
		Speed:          m.Speed,
		Orientation:    m.Orientation,
		Moving:         m.Moving,
		TxBitrate:      m.TxBitrate,
		SignalStrength: m.SignalStrength,
	}
	if locationID != 0 {
		h.LocationID = &locationID
	}
	return h
}

// location returns the id of the coordinates, inserting them if needed.
func location(tx *gorm.DB, lat, lon float64) (uint, error) {
	loc := Location{Latitude: lat, Longitude: lon}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&loc).Error
	if err != nil {
		return 0, err
	}
	if loc.LocationID != 0 {
		return loc.LocationID, nil
	}
	err = tx.Where("latitude = ? AND longitude = ?", lat, lon).First(&loc).Error
	return loc.LocationID, err
}

// Store upserts every record in one transaction. On conflict, only the
// columns owned by the record kind are updated.
func (p *Postgres) Store(ctx context.Context, records []data.Measurement) error {
	if len(records) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type coords struct{ lat, lon float64 }
		ids := make(map[coords]uint)
		for i := range records {
			m := &records[i]
			var id uint
			// Only throughput records carry a position.
			if m.Kind() == data.Throughput {
				c := coords{m.Latitude, m.Longitude}
				var found bool
				if id, found = ids[c]; !found {
					var err error
					id, err = location(tx, c.lat, c.lon)
					if err != nil {
						return errors.Wrap(err, "cannot insert location")
					}
					ids[c] = id
				}
			}
			row := historyRow(m, id)
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "timestamp"}, {Name: "rat"}},
				DoUpdates: clause.AssignmentColumns(updateColumns[m.Kind()]),
			}).Create(&row).Error
			if err != nil {
				return errors.Wrapf(err, "cannot upsert history row %s@%d", m.RAT, m.TimestampMillis)
			}
		}
		return nil
	})
}

// UpdateScanInfo sets the scan info of every row of rat with a timestamp
// in (begin, end].
func (p *Postgres) UpdateScanInfo(ctx context.Context, rat, info string, begin, end time.Time) (int64, error) {
	res := p.db.WithContext(ctx).Model(&History{}).
		Where("rat = ? AND timestamp > ? AND timestamp <= ?", rat, begin, end).
		Update("scan_info", info)
	return res.RowsAffected, res.Error
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
