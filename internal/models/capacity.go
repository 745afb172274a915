package models

import "time"

// GymCapacity corresponds to the gym_capacities table: the live occupancy
// counter for one facility. CurrentOccupancy is only ever moved through
// conditional UPDATEs in the attendance service, never through read-modify-
// write on this struct, so concurrent check-ins cannot overshoot MaxCapacity.
type GymCapacity struct {
	GymID            string    `gorm:"type:varchar(36);primaryKey" json:"gym_id"`
	MaxCapacity      int       `gorm:"not null" json:"max_capacity"`
	CurrentOccupancy int       `gorm:"not null;default:0" json:"current_occupancy"`
	IsOpen           bool      `gorm:"not null;default:true" json:"is_open"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SoftLimit is the occupancy level at which the floor is considered busy,
// 80% of the hard cap.
func (g *GymCapacity) SoftLimit() int {
	return g.MaxCapacity * 80 / 100
}

// IsFull reports whether the hard cap has been reached.
func (g *GymCapacity) IsFull() bool {
	return g.CurrentOccupancy >= g.MaxCapacity
}

// IsBusy reports whether occupancy is at or above the soft limit.
func (g *GymCapacity) IsBusy() bool {
	return g.CurrentOccupancy >= g.SoftLimit()
}

// UtilizationPercent returns occupancy as a whole percentage of the cap.
func (g *GymCapacity) UtilizationPercent() int {
	if g.MaxCapacity <= 0 {
		return 0
	}
	return g.CurrentOccupancy * 100 / g.MaxCapacity
}
