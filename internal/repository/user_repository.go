package repository

import (
	"context"

	"github.com/savannah-faces/data-service/internal/models"
	"gorm.io/gorm"
)

type UserRepository struct {
	base
}

func NewUserRepository(deps Deps) *UserRepository {
	return &UserRepository{base: newBase(deps)}
}

// Create inserts user. A taken email fails with ErrConflict and writes nothing.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.run(ctx, "user.create", func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.run(ctx, "user.get", func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.run(ctx, "user.get_by_email", func(tx *gorm.DB) error {
		return tx.Where("email = ?", email).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context, page Page) ([]models.User, error) {
	var users []models.User
	err := r.run(ctx, "user.list", func(tx *gorm.DB) error {
		return page.apply(tx.Order("created_at ASC, id ASC")).Find(&users).Error
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Update overwrites only the fields that are set and non-empty.
func (r *UserRepository) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	var user models.User
	err := r.run(ctx, "user.update", func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return err
		}

		changes := map[string]any{}
		if upd.Name != nil && *upd.Name != "" {
			changes["name"] = *upd.Name
		}
		if upd.Email != nil && *upd.Email != "" {
			changes["email"] = *upd.Email
		}
		if len(changes) == 0 {
			return nil
		}

		if err := tx.Model(&user).Updates(changes).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Delete removes the user. Deleting a missing id is not an error.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.run(ctx, "user.delete", func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Delete(&models.User{}).Error
	})
}
