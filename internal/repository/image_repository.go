package repository

import (
	"context"
	"errors"

	"github.com/savannah-faces/data-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ImageRepository struct {
	base
}

func NewImageRepository(deps Deps) *ImageRepository {
	return &ImageRepository{base: newBase(deps)}
}

func (r *ImageRepository) Create(ctx context.Context, image *models.Image) error {
	return r.run(ctx, "image.create", func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(image).Error
	})
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (*models.Image, error) {
	var image models.Image
	err := r.run(ctx, "image.get", func(tx *gorm.DB) error {
		return tx.Preload("Label").Where("id = ?", id).First(&image).Error
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *ImageRepository) GetByName(ctx context.Context, name string) (*models.Image, error) {
	var image models.Image
	err := r.run(ctx, "image.get_by_name", func(tx *gorm.DB) error {
		return tx.Preload("Label").Where("image_name = ?", name).First(&image).Error
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *ImageRepository) List(ctx context.Context, page Page) ([]models.Image, error) {
	var images []models.Image
	err := r.run(ctx, "image.list", func(tx *gorm.DB) error {
		return page.apply(tx.Preload("Label").Order("created_at ASC, id ASC")).Find(&images).Error
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// NextUnlabelled picks the oldest image still waiting for a label.
// It returns nil, nil when the queue is empty.
func (r *ImageRepository) NextUnlabelled(ctx context.Context) (*models.Image, error) {
	var image models.Image
	found := true
	err := r.run(ctx, "image.next_unlabelled", func(tx *gorm.DB) error {
		err := tx.Where("status = ?", models.StatusUnlabelled).
			Order("created_at ASC, id ASC").
			First(&image).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		found = true
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &image, nil
}

func (r *ImageRepository) Update(ctx context.Context, id string, upd models.ImageUpdate) (*models.Image, error) {
	var image models.Image
	err := r.run(ctx, "image.update", func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&image).Error; err != nil {
			return err
		}
		if upd.ImageName != nil && *upd.ImageName != "" {
			if err := tx.Model(&image).Update("image_name", *upd.ImageName).Error; err != nil {
				return err
			}
		}
		return tx.Preload("Label").Where("id = ?", id).First(&image).Error
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// Delete removes the image row together with its label. The stored asset is
// left alone; removing it is up to the caller.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	return r.run(ctx, "image.delete", func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.ImageLabel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Image{}).Error
	})
}
