package service

import (
	"context"

	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/repository"
	"go.uber.org/zap"
)

type ImageLabelService struct {
	uow    UnitOfWork
	labels *repository.ImageLabelRepository
	log    *zap.Logger
}

func NewImageLabelService(uow UnitOfWork, labels *repository.ImageLabelRepository, log *zap.Logger) *ImageLabelService {
	return &ImageLabelService{uow: uow, labels: labels, log: log}
}

// Create labels the image named in.ImageName and takes it out of the
// unlabelled queue.
func (s *ImageLabelService) Create(ctx context.Context, in models.ImageLabelCreate) (*models.ImageLabelRead, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}

	var label *models.ImageLabel
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		label, err = s.labels.Create(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Image labelled",
		zap.String("label_id", label.ID),
		zap.String("image_name", in.ImageName),
		zap.Int("tags", len(label.Tags)),
	)

	read := label.ToRead()
	return &read, nil
}

func (s *ImageLabelService) Get(ctx context.Context, id string) (*models.ImageLabelRead, error) {
	var label *models.ImageLabel
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		label, err = s.labels.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	read := label.ToRead()
	return &read, nil
}

func (s *ImageLabelService) List(ctx context.Context, page repository.Page) ([]models.ImageLabelRead, error) {
	var labels []models.ImageLabel
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		labels, err = s.labels.List(ctx, page)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.ImageLabelRead, 0, len(labels))
	for i := range labels {
		out = append(out, labels[i].ToRead())
	}
	return out, nil
}

func (s *ImageLabelService) Update(ctx context.Context, id string, upd models.ImageLabelUpdate) (*models.ImageLabelRead, error) {
	if err := models.Validate(upd); err != nil {
		return nil, err
	}

	var label *models.ImageLabel
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		label, err = s.labels.Update(ctx, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	read := label.ToRead()
	return &read, nil
}

// Delete removes the label. The image stays labelled and does not return to
// the queue.
func (s *ImageLabelService) Delete(ctx context.Context, id string) error {
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.labels.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("Image label deleted", zap.String("label_id", id))
	return nil
}
