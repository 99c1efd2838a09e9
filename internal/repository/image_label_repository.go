package repository

import (
	"context"

	"github.com/savannah-faces/data-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ImageLabelRepository struct {
	base
}

func NewImageLabelRepository(deps Deps) *ImageLabelRepository {
	return &ImageLabelRepository{base: newBase(deps)}
}

// Create attaches a label to the image named in.ImageName and marks that image
// labelled. Both writes commit together or not at all.
// An unknown image fails with ErrNotFound; an already labelled one with ErrConflict.
func (r *ImageLabelRepository) Create(ctx context.Context, in models.ImageLabelCreate) (*models.ImageLabel, error) {
	var label models.ImageLabel
	err := r.run(ctx, "image_label.create", func(tx *gorm.DB) error {
		var image models.Image
		if err := tx.Where("image_name = ?", in.ImageName).First(&image).Error; err != nil {
			return err
		}

		label = models.ImageLabel{
			ID:      models.NewID(models.PrefixImageLabel),
			Prompt:  in.Prompt,
			Tags:    models.Tags(in.Tags),
			Gender:  in.Gender,
			ImageID: image.ID,
		}
		if err := tx.Omit(clause.Associations).Create(&label).Error; err != nil {
			return err
		}

		if err := tx.Model(&image).Update("status", models.StatusLabelled).Error; err != nil {
			return err
		}
		image.Status = models.StatusLabelled
		label.Image = &image
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &label, nil
}

func (r *ImageLabelRepository) GetByID(ctx context.Context, id string) (*models.ImageLabel, error) {
	var label models.ImageLabel
	err := r.run(ctx, "image_label.get", func(tx *gorm.DB) error {
		return tx.Preload("Image").Where("id = ?", id).First(&label).Error
	})
	if err != nil {
		return nil, err
	}
	return &label, nil
}

func (r *ImageLabelRepository) List(ctx context.Context, page Page) ([]models.ImageLabel, error) {
	var labels []models.ImageLabel
	err := r.run(ctx, "image_label.list", func(tx *gorm.DB) error {
		return page.apply(tx.Preload("Image").Order("created_at ASC, id ASC")).Find(&labels).Error
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// Update overwrites only the fields that are set and non-empty.
func (r *ImageLabelRepository) Update(ctx context.Context, id string, upd models.ImageLabelUpdate) (*models.ImageLabel, error) {
	var label models.ImageLabel
	err := r.run(ctx, "image_label.update", func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&label).Error; err != nil {
			return err
		}

		changes := map[string]any{}
		if upd.Prompt != nil && *upd.Prompt != "" {
			changes["prompt"] = *upd.Prompt
		}
		if len(upd.Tags) > 0 {
			changes["tags"] = models.Tags(upd.Tags)
		}
		if upd.Gender != nil && *upd.Gender != "" {
			changes["gender"] = *upd.Gender
		}

		if len(changes) > 0 {
			if err := tx.Model(&label).Updates(changes).Error; err != nil {
				return err
			}
		}
		return tx.Preload("Image").Where("id = ?", id).First(&label).Error
	})
	if err != nil {
		return nil, err
	}
	return &label, nil
}

// Delete removes the label only. The image keeps its labelled status.
func (r *ImageLabelRepository) Delete(ctx context.Context, id string) error {
	return r.run(ctx, "image_label.delete", func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Delete(&models.ImageLabel{}).Error
	})
}
