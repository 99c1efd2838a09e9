package models

import (
	"time"
)

type ImageStatus string

const (
	StatusUnlabelled ImageStatus = "unlabelled"
	StatusLabelled   ImageStatus = "labelled"

	DefaultImageVersion = "v1"
)

// Image is an uploaded asset. ImageName is the generated storage filename.
// Status only ever moves from unlabelled to labelled, when a label is attached.
type Image struct {
	ID        string      `gorm:"type:varchar(64);primaryKey" json:"id"`
	ImageName string      `gorm:"type:varchar(255);uniqueIndex;not null" json:"image_name"`
	Version   string      `gorm:"type:varchar(20);not null;default:'v1'" json:"version"`
	Status    ImageStatus `gorm:"type:varchar(20);not null;default:'unlabelled';index" json:"status"`
	Label     *ImageLabel `gorm:"foreignKey:ImageID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"label,omitempty"`
	CreatedAt time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ImageCreate struct {
	ImageName string `json:"image_name" validate:"required,max=255"`
	Version   string `json:"version" validate:"omitempty,max=20"`
}

type ImageRead struct {
	ID        string          `json:"id"`
	ImageName string          `json:"image_name"`
	Version   string          `json:"version"`
	Status    ImageStatus     `json:"status"`
	Label     *ImageLabelRead `json:"label"`
	CreatedAt time.Time       `json:"created_at"`
}

type ImageUpdate struct {
	ImageName *string `json:"image_name" validate:"omitempty,min=1,max=255"`
}

func (i *Image) ToRead() ImageRead {
	read := ImageRead{
		ID:        i.ID,
		ImageName: i.ImageName,
		Version:   i.Version,
		Status:    i.Status,
		CreatedAt: i.CreatedAt,
	}
	if i.Label != nil {
		label := i.Label.ToRead()
		label.ImageName = i.ImageName
		read.Label = &label
	}
	return read
}
