package models

import (
	"time"

	"github.com/google/uuid"
)

// JobRecord is one completed delivery's telemetry as handed over by the
// ingestion pipeline. The engine treats rows as immutable evidence; the
// ingestion side owns the ID, so a redelivered job keeps the same primary key.
type JobRecord struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RiderID              uuid.UUID `gorm:"column:rider_id;type:uuid;not null;index"`
	SourceCity           string    `gorm:"column:source_city"`
	SourceCompany        string    `gorm:"column:source_company"`
	DestinationCity      string    `gorm:"column:destination_city"`
	DestinationCompany   string    `gorm:"column:destination_company"`
	CargoName            string    `gorm:"column:cargo_name"`
	DistanceKm           float64   `gorm:"column:distance_km"`
	AvgSpeedKmh          float64   `gorm:"column:avg_speed_kmh"`
	TopSpeedKmh          float64   `gorm:"column:top_speed_kmh"`
	TruckDamagePercent   float64   `gorm:"column:truck_damage_percent"`
	TrailerDamagePercent float64   `gorm:"column:trailer_damage_percent"`
	Revenue              float64   `gorm:"column:revenue"`
	CompletedAt          time.Time `gorm:"column:completed_at;not null"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
}
