package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/savannah-faces/data-service/internal/metrics"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/repository"
	"github.com/savannah-faces/data-service/internal/storage"
	"go.uber.org/zap"
)

// sniffLen is how much of an upload is inspected to detect its real type.
const sniffLen = 3072

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Upload is one file as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type UploadResult struct {
	Filename    string           `json:"filename"`
	ImageName   string           `json:"image_name"`
	ContentType string           `json:"content_type"`
	StoredAt    string           `json:"stored_at"`
	URL         string           `json:"url"`
	Image       models.ImageRead `json:"image"`
}

type ImageService struct {
	uow     UnitOfWork
	images  *repository.ImageRepository
	store   storage.Store
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewImageService(
	uow UnitOfWork,
	images *repository.ImageRepository,
	store storage.Store,
	m *metrics.Metrics,
	log *zap.Logger,
) *ImageService {
	return &ImageService{
		uow:     uow,
		images:  images,
		store:   store,
		metrics: m,
		log:     log,
	}
}

// Upload stores a JPEG or PNG under a freshly generated name and registers it
// as an unlabelled image. Both the declared type and the sniffed content must
// be an accepted image type. If the row cannot be written the stored file is
// removed again.
func (s *ImageService) Upload(ctx context.Context, in Upload) (*UploadResult, error) {
	start := time.Now()

	declared, _, err := mime.ParseMediaType(in.ContentType)
	if err != nil || !allowedImageTypes[declared] {
		s.reject(in, "declared type not accepted")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, in.ContentType)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !allowedImageTypes[detected.String()] {
		s.reject(in, "content is "+detected.String())
		return nil, fmt.Errorf("%w: content is %s", ErrUnsupportedMediaType, detected.String())
	}

	name := uuid.NewString() + detected.Extension()
	body, err := rewind(in.Body, head)
	if err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	storedAt, err := s.store.Save(ctx, name, detected.String(), body)
	if err != nil {
		s.metrics.RecordUpload("failed")
		s.log.Error("Failed to store upload", zap.String("image_name", name), zap.Error(err))
		return nil, fmt.Errorf("store upload: %w", err)
	}

	image := &models.Image{
		ID:        models.NewID(models.PrefixImage),
		ImageName: name,
		Version:   models.DefaultImageVersion,
		Status:    models.StatusUnlabelled,
	}
	err = s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.images.Create(ctx, image)
	})
	if err != nil {
		// the request may already be cancelled; the cleanup must still run
		if delErr := s.store.Delete(context.WithoutCancel(ctx), name); delErr != nil {
			s.log.Error("Failed to remove orphaned upload",
				zap.String("image_name", name),
				zap.Error(delErr),
			)
		}
		s.metrics.RecordUpload("compensated")
		s.log.Error("Failed to register upload", zap.String("image_name", name), zap.Error(err))
		return nil, err
	}

	s.metrics.RecordUpload("stored")
	s.log.Info("Image uploaded",
		zap.String("image_id", image.ID),
		zap.String("image_name", name),
		zap.String("content_type", detected.String()),
		zap.Duration("duration", time.Since(start)),
	)

	return &UploadResult{
		Filename:    in.Filename,
		ImageName:   name,
		ContentType: declared,
		StoredAt:    storedAt,
		URL:         s.store.URL(name),
		Image:       image.ToRead(),
	}, nil
}

// rewind returns the whole upload after head was read from it. Seekable
// bodies (multipart files) are seeked back to the start so stores can size
// and re-read them.
func rewind(body io.Reader, head []byte) (io.Reader, error) {
	if seeker, ok := body.(io.ReadSeeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return seeker, nil
	}
	return io.MultiReader(bytes.NewReader(head), body), nil
}

func (s *ImageService) reject(in Upload, reason string) {
	s.metrics.RecordUpload("rejected")
	s.log.Warn("Upload rejected",
		zap.String("filename", in.Filename),
		zap.String("content_type", in.ContentType),
		zap.String("reason", reason),
	)
}

// Create registers an image whose file was stored out of band.
func (s *ImageService) Create(ctx context.Context, in models.ImageCreate) (*models.ImageRead, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	if in.Version == "" {
		in.Version = models.DefaultImageVersion
	}

	image := &models.Image{
		ID:        models.NewID(models.PrefixImage),
		ImageName: in.ImageName,
		Version:   in.Version,
		Status:    models.StatusUnlabelled,
	}
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.images.Create(ctx, image)
	})
	if err != nil {
		return nil, err
	}

	read := image.ToRead()
	return &read, nil
}

func (s *ImageService) Get(ctx context.Context, id string) (*models.ImageRead, error) {
	return s.one(ctx, func(ctx context.Context) (*models.Image, error) {
		return s.images.GetByID(ctx, id)
	})
}

func (s *ImageService) GetByName(ctx context.Context, name string) (*models.ImageRead, error) {
	return s.one(ctx, func(ctx context.Context) (*models.Image, error) {
		return s.images.GetByName(ctx, name)
	})
}

// NextUnlabelled returns the oldest image still waiting for a label, or
// repository.ErrNotFound when the queue is empty.
func (s *ImageService) NextUnlabelled(ctx context.Context) (*models.ImageRead, error) {
	return s.one(ctx, func(ctx context.Context) (*models.Image, error) {
		image, err := s.images.NextUnlabelled(ctx)
		if err == nil && image == nil {
			return nil, fmt.Errorf("next unlabelled image: %w", repository.ErrNotFound)
		}
		return image, err
	})
}

func (s *ImageService) one(ctx context.Context, get func(ctx context.Context) (*models.Image, error)) (*models.ImageRead, error) {
	var image *models.Image
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		image, err = get(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	read := image.ToRead()
	return &read, nil
}

func (s *ImageService) List(ctx context.Context, page repository.Page) ([]models.ImageRead, error) {
	var images []models.Image
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		images, err = s.images.List(ctx, page)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.ImageRead, 0, len(images))
	for i := range images {
		out = append(out, images[i].ToRead())
	}
	return out, nil
}

// Update renames an image record. The stored asset keeps its original name.
func (s *ImageService) Update(ctx context.Context, id string, upd models.ImageUpdate) (*models.ImageRead, error) {
	if err := models.Validate(upd); err != nil {
		return nil, err
	}
	return s.one(ctx, func(ctx context.Context) (*models.Image, error) {
		return s.images.Update(ctx, id, upd)
	})
}

// Delete removes the image row and its label, then the stored asset. Deleting
// an id that does not exist succeeds and leaves storage alone. A failed asset
// removal is logged and otherwise ignored since the row is already gone.
func (s *ImageService) Delete(ctx context.Context, id string) error {
	var image *models.Image
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		image, err = s.images.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			image = nil
			return nil
		}
		if err != nil {
			return err
		}
		return s.images.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if image == nil {
		return nil
	}

	if err := s.store.Delete(context.WithoutCancel(ctx), image.ImageName); err != nil {
		s.log.Error("Failed to remove image asset",
			zap.String("image_id", id),
			zap.String("image_name", image.ImageName),
			zap.Error(err),
		)
	}

	s.log.Info("Image deleted", zap.String("image_id", id))
	return nil
}
