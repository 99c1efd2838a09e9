package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/savannah-faces/data-service/internal/config"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/retry"
	"github.com/savannah-faces/data-service/internal/utils"
	"gorm.io/gorm"
)

const (
	TestPassword = "Test123456"
	TestSecret   = "test-secret-key-for-jwt-testing"
)

var createdSeq atomic.Int64

// FastRetryPolicy keeps the production shape (3 attempts, doubling waits)
// at millisecond scale.
func FastRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Multiplier:  time.Millisecond,
		MinWait:     time.Millisecond,
		MaxWait:     5 * time.Millisecond,
	}
}

// TestHasher hashes with the cheapest argon2id settings.
func TestHasher() *utils.PasswordHasher {
	return utils.NewPasswordHasher(utils.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})
}

// TestConfig returns a development configuration that needs no environment.
func TestConfig(dataDir string) *config.Config {
	return &config.Config{
		Environment: config.EnvDevelopment,
		AppName:     "Savannah Faces Data Service",
		AppVersion:  "test",
		APIVersion:  "v1",
		ServerPort:  ":0",
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
		},
		Storage: config.StorageConfig{
			Backend: config.StorageLocal,
			DataDir: dataDir,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			Multiplier:  time.Millisecond,
			MinWait:     time.Millisecond,
			MaxWait:     5 * time.Millisecond,
		},
		Token: config.TokenConfig{
			SecretKey: TestSecret,
			Algorithm: "HS256",
			TTL:       30 * time.Minute,
		},
		Cookie: config.CookieConfig{
			Name:     "access_token",
			HTTPOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   300,
		},
		Password: config.PasswordConfig{Memory: 8 * 1024, Iterations: 1, Parallelism: 1},

		RateLimitMaxRequests: 20,
		RateLimitWindow:      time.Minute,
		RateLimitBlockTime:   5 * time.Minute,
		MaxUploadBytes:       1 << 20,
	}
}

// PNGBytes encodes a tiny valid PNG.
func PNGBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEGBytes encodes a tiny valid JPEG.
func JPEGBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 120, A: 255})
		}
	}
	return img
}

// CreateTestUser inserts a user with a hashed password
func CreateTestUser(t *testing.T, db *gorm.DB, name, email, password string) *models.User {
	t.Helper()

	hash, err := TestHasher().Hash(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		ID:           models.NewID(models.PrefixUser),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    nextCreatedAt(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// CreateTestImage inserts an unlabelled image. Images created one after
// another get strictly increasing creation times.
func CreateTestImage(t *testing.T, db *gorm.DB, name string) *models.Image {
	t.Helper()

	img := &models.Image{
		ID:        models.NewID(models.PrefixImage),
		ImageName: name,
		Version:   models.DefaultImageVersion,
		Status:    models.StatusUnlabelled,
		CreatedAt: nextCreatedAt(),
	}
	if err := db.Omit("Label").Create(img).Error; err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	return img
}

func nextCreatedAt() time.Time {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(createdSeq.Add(1)) * time.Second)
}
