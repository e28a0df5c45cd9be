package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type roomSnapshot struct {
	RoomID    string `gorm:"primaryKey"`
	RoomKey   string `gorm:"index;not null"`
	Version   int    `gorm:"not null"`
	Payload   []byte `gorm:"type:bytea;not null"`
	UpdatedAt time.Time
}

func (roomSnapshot) TableName() string { return "room_snapshots" }

type Postgres struct {
	db *gorm.DB
}

// NewPostgres connects and migrates the room_snapshots table.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&roomSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate room_snapshots: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Save(ctx context.Context, snap Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	row := roomSnapshot{
		RoomID:  snap.RoomID,
		RoomKey: snap.RoomKey,
		Version: snap.Version,
		Payload: data,
	}
	err = p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"room_key", "version", "payload", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.RoomID, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, roomID string) (Snapshot, error) {
	var row roomSnapshot
	err := p.db.WithContext(ctx).First(&row, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot %s: %w", roomID, err)
	}
	return decode(row.Payload)
}

func (p *Postgres) Delete(ctx context.Context, roomID string) error {
	err := p.db.WithContext(ctx).Delete(&roomSnapshot{}, "room_id = ?", roomID).Error
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", roomID, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
