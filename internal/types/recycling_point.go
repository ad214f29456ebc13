package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RecyclingPoint struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name             string         `gorm:"not null;column:name" json:"name"`
	Latitude         float64        `gorm:"not null;index;column:latitude" json:"latitude"`
	Longitude        float64        `gorm:"not null;index;column:longitude" json:"longitude"`
	RadiusMeters     float64        `gorm:"not null;column:radius_meters" json:"radius_meters"`
	Altitude         *float64       `gorm:"column:altitude" json:"altitude,omitempty"`
	AllowedMaterials datatypes.JSON `gorm:"type:jsonb;not null;column:allowed_materials" json:"allowed_materials"`
	RewardMultiplier float64        `gorm:"not null;default:1.0;column:reward_multiplier" json:"reward_multiplier"`
	IsActive         bool           `gorm:"not null;default:true;index;column:is_active" json:"is_active"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (RecyclingPoint) TableName() string { return "recycling_points" }

// Materials decodes the allowed-materials JSON column.
func (p *RecyclingPoint) Materials() []Material {
	var out []Material
	if len(p.AllowedMaterials) == 0 {
		return out
	}
	_ = json.Unmarshal(p.AllowedMaterials, &out)
	return out
}

// Allows reports whether the point accepts the given material.
func (p *RecyclingPoint) Allows(m Material) bool {
	for _, allowed := range p.Materials() {
		if allowed == m {
			return true
		}
	}
	return false
}
