package models

import (
	"time"
)

// ImageLabel describes one image. The unique index on ImageID keeps it at one label per image,
// even under concurrent label submissions.
type ImageLabel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	Tags      Tags      `gorm:"type:text;not null" json:"tags"`
	Gender    string    `gorm:"type:varchar(32);not null" json:"gender"`
	ImageID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"image_id"`
	Image     *Image    `gorm:"foreignKey:ImageID" json:"-"` // read-side back-reference only
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ImageLabelCreate struct {
	ImageName string   `json:"image_name" validate:"required,max=255"`
	Prompt    string   `json:"prompt" validate:"required"`
	Tags      []string `json:"tags" validate:"dive,tag"`
	Gender    string   `json:"gender" validate:"required,max=32"`
}

type ImageLabelRead struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"image_id"`
	ImageName string    `json:"image_name"`
	Prompt    string    `json:"prompt"`
	Tags      []string  `json:"tags"`
	Gender    string    `json:"gender"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageLabelUpdate is a partial update: nil or empty fields are left untouched.
type ImageLabelUpdate struct {
	Prompt *string  `json:"prompt"`
	Tags   []string `json:"tags" validate:"omitempty,dive,tag"`
	Gender *string  `json:"gender" validate:"omitempty,max=32"`
}

func (l *ImageLabel) ToRead() ImageLabelRead {
	tags := []string(l.Tags)
	if tags == nil {
		tags = []string{}
	}

	read := ImageLabelRead{
		ID:        l.ID,
		ImageID:   l.ImageID,
		Prompt:    l.Prompt,
		Tags:      tags,
		Gender:    l.Gender,
		CreatedAt: l.CreatedAt,
	}
	if l.Image != nil {
		read.ImageName = l.Image.ImageName
	}
	return read
}
