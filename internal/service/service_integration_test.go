package service_test

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/savannah-faces/data-service/internal/database"
	"github.com/savannah-faces/data-service/internal/metrics"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/repository"
	"github.com/savannah-faces/data-service/internal/service"
	"github.com/savannah-faces/data-service/internal/storage"
	tu "github.com/savannah-faces/data-service/internal/testutil"
	"github.com/savannah-faces/data-service/internal/utils"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ServiceIntegrationTestSuite runs the services over in-memory SQLite and a
// temporary asset directory.
type ServiceIntegrationTestSuite struct {
	suite.Suite
	testDB  *tu.TestDatabase
	dataDir string
	metrics *metrics.Metrics
	tokens  *utils.TokenManager

	users  *service.UserService
	images *service.ImageService
	labels *service.ImageLabelService
}

func (s *ServiceIntegrationTestSuite) SetupSuite() {
	s.testDB = tu.SetupTestDatabase(s.T())
}

func (s *ServiceIntegrationTestSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *ServiceIntegrationTestSuite) SetupTest() {
	tu.CleanDatabase(s.T(), s.testDB.DB)

	s.dataDir = s.T().TempDir()
	store, err := storage.NewLocalStore(s.dataDir, "/data")
	s.Require().NoError(err)

	s.tokens, err = utils.NewTokenManager(tu.TestSecret, "HS256", 30*time.Minute)
	s.Require().NoError(err)

	s.metrics = metrics.New()
	log := zap.NewNop()
	deps := repository.Deps{DB: s.testDB.DB, Policy: tu.FastRetryPolicy(), Log: log, Metrics: s.metrics}
	uow := database.NewTransactor(s.testDB.DB, tu.FastRetryPolicy(), log, s.metrics)

	s.users = service.NewUserService(uow, repository.NewUserRepository(deps), tu.TestHasher(), s.tokens, log)
	s.images = service.NewImageService(uow, repository.NewImageRepository(deps), store, s.metrics, log)
	s.labels = service.NewImageLabelService(uow, repository.NewImageLabelRepository(deps), log)
}

func (s *ServiceIntegrationTestSuite) count(table string) int64 {
	var n int64
	s.Require().NoError(s.testDB.DB.Table(table).Count(&n).Error)
	return n
}

func (s *ServiceIntegrationTestSuite) storedFiles() []string {
	entries, err := os.ReadDir(s.dataDir)
	s.Require().NoError(err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func uploadCount(m *metrics.Metrics, outcome string) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, family := range families {
		if family.GetName() != "image_uploads_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func (s *ServiceIntegrationTestSuite) register(name, email string) *models.UserRead {
	user, err := s.users.Register(context.Background(), models.UserCreate{Name: name, Email: email, Password: tu.TestPassword})
	s.Require().NoError(err)
	return user
}

func (s *ServiceIntegrationTestSuite) uploadPNG() *service.UploadResult {
	result, err := s.images.Upload(context.Background(), service.Upload{
		Filename:    "face.png",
		ContentType: "image/png",
		Body:        bytes.NewReader(tu.PNGBytes(s.T())),
	})
	s.Require().NoError(err)
	return result
}

// Users

func (s *ServiceIntegrationTestSuite) TestRegister() {
	user := s.register("Amani", "  Amani@Example.com ")

	s.True(strings.HasPrefix(user.ID, models.PrefixUser+"-"))
	s.Equal("Amani", user.Name)
	s.Equal("amani@example.com", user.Email, "email is normalized")

	var stored models.User
	s.Require().NoError(s.testDB.DB.Where("id = ?", user.ID).First(&stored).Error)
	s.True(strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	s.NotContains(stored.PasswordHash, tu.TestPassword)
}

func (s *ServiceIntegrationTestSuite) TestRegisterDuplicateEmail() {
	s.register("First", "dup@example.com")

	_, err := s.users.Register(context.Background(), models.UserCreate{Name: "Second", Email: "DUP@example.com", Password: tu.TestPassword})
	s.ErrorIs(err, repository.ErrConflict)
	s.EqualValues(1, s.count("users"))
}

func (s *ServiceIntegrationTestSuite) TestRegisterValidation() {
	_, err := s.users.Register(context.Background(), models.UserCreate{Name: "", Email: "not-an-email", Password: "short"})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "name")
	s.Contains(verr.Fields, "email")
	s.Contains(verr.Fields, "password")
	s.EqualValues(0, s.count("users"))
}

func (s *ServiceIntegrationTestSuite) TestAuthenticateFailuresLookTheSame() {
	s.register("Amani", "amani@example.com")
	ctx := context.Background()

	_, unknownErr := s.users.Authenticate(ctx, "nobody@example.com", tu.TestPassword)
	_, wrongErr := s.users.Authenticate(ctx, "amani@example.com", "wrong-password")

	s.ErrorIs(unknownErr, service.ErrInvalidCredentials)
	s.ErrorIs(wrongErr, service.ErrInvalidCredentials)
	s.ErrorIs(unknownErr, service.ErrUnauthorized)
	s.Equal(unknownErr.Error(), wrongErr.Error())
}

// countingHasher counts Verify calls on top of the real hasher.
type countingHasher struct {
	*utils.PasswordHasher
	verified int
}

func (h *countingHasher) Verify(password, encodedHash string) (bool, error) {
	h.verified++
	return h.PasswordHasher.Verify(password, encodedHash)
}

func (s *ServiceIntegrationTestSuite) TestAuthenticateUnknownEmailStillVerifies() {
	hasher := &countingHasher{PasswordHasher: tu.TestHasher()}
	log := zap.NewNop()
	deps := repository.Deps{DB: s.testDB.DB, Policy: tu.FastRetryPolicy(), Log: log, Metrics: s.metrics}
	uow := database.NewTransactor(s.testDB.DB, tu.FastRetryPolicy(), log, s.metrics)
	users := service.NewUserService(uow, repository.NewUserRepository(deps), hasher, s.tokens, log)

	_, err := users.Authenticate(context.Background(), "nobody@example.com", tu.TestPassword)
	s.ErrorIs(err, service.ErrInvalidCredentials)
	s.Equal(1, hasher.verified, "unknown email pays for one password check")

	_, err = users.Register(context.Background(), models.UserCreate{Name: "Amani", Email: "amani@example.com", Password: tu.TestPassword})
	s.Require().NoError(err)
	_, err = users.Authenticate(context.Background(), "amani@example.com", "wrong-password")
	s.ErrorIs(err, service.ErrInvalidCredentials)
	s.Equal(2, hasher.verified)
}

func (s *ServiceIntegrationTestSuite) TestAuthenticateBcryptUser() {
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	s.Require().NoError(err)
	s.Require().NoError(s.testDB.DB.Create(&models.User{
		ID:           models.NewID(models.PrefixUser),
		Name:         "Legacy",
		Email:        "legacy@example.com",
		PasswordHash: string(hash),
	}).Error)

	user, err := s.users.Authenticate(context.Background(), "legacy@example.com", "legacy-password")
	s.Require().NoError(err)
	s.Equal("Legacy", user.Name)
}

func (s *ServiceIntegrationTestSuite) TestLoginAndCurrentUser() {
	registered := s.register("Amani", "amani@example.com")
	ctx := context.Background()

	token, user, err := s.users.Login(ctx, "AMANI@example.com", tu.TestPassword)
	s.Require().NoError(err)
	s.NotEmpty(token)
	s.Equal(registered.ID, user.ID)

	current, err := s.users.CurrentUser(ctx, token)
	s.Require().NoError(err)
	s.Equal(registered.ID, current.ID)
}

func (s *ServiceIntegrationTestSuite) TestCurrentUserRejectsBadSessions() {
	s.register("Amani", "amani@example.com")
	ctx := context.Background()

	_, err := s.users.CurrentUser(ctx, "")
	s.ErrorIs(err, service.ErrUnauthorized)

	_, err = s.users.CurrentUser(ctx, "garbage")
	s.ErrorIs(err, service.ErrUnauthorized)

	expired, err := s.tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).Issue("amani@example.com")
	s.Require().NoError(err)
	_, err = s.users.CurrentUser(ctx, expired)
	s.ErrorIs(err, service.ErrUnauthorized)

	ghost, err := s.tokens.Issue("ghost@example.com")
	s.Require().NoError(err)
	_, err = s.users.CurrentUser(ctx, ghost)
	s.ErrorIs(err, service.ErrUnauthorized)
}

func (s *ServiceIntegrationTestSuite) TestUpdateListDelete() {
	ctx := context.Background()
	a := s.register("A", "a@example.com")
	s.register("B", "b@example.com")

	name := "  Renamed "
	updated, err := s.users.Update(ctx, a.ID, models.UserUpdate{Name: &name})
	s.Require().NoError(err)
	s.Equal("Renamed", updated.Name)

	bad := "nope"
	_, err = s.users.Update(ctx, a.ID, models.UserUpdate{Email: &bad})
	var verr *models.ValidationError
	s.ErrorAs(err, &verr)

	all, err := s.users.List(ctx, repository.Page{})
	s.Require().NoError(err)
	s.Len(all, 2)

	s.Require().NoError(s.users.Delete(ctx, a.ID))
	_, err = s.users.Get(ctx, a.ID)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *ServiceIntegrationTestSuite) TestEnsureDefaultUser() {
	ctx := context.Background()

	user, created, err := s.users.EnsureDefaultUser(ctx, "Admin", "admin@example.com", "Admin123456")
	s.Require().NoError(err)
	s.True(created)

	again, created, err := s.users.EnsureDefaultUser(ctx, "Admin", "admin@example.com", "other-password")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(user.ID, again.ID)
	s.EqualValues(1, s.count("users"))
}

// Images

func (s *ServiceIntegrationTestSuite) TestUploadPNG() {
	result := s.uploadPNG()

	s.Equal("face.png", result.Filename)
	s.Equal("image/png", result.ContentType)
	s.True(strings.HasSuffix(result.ImageName, ".png"))
	s.Equal(filepath.Join(s.dataDir, result.ImageName), result.StoredAt)
	s.Equal("/data/"+result.ImageName, result.URL)
	s.Equal(models.StatusUnlabelled, result.Image.Status)
	s.Equal(models.DefaultImageVersion, result.Image.Version)

	content, err := os.ReadFile(result.StoredAt)
	s.Require().NoError(err)
	s.Equal(tu.PNGBytes(s.T()), content, "file is stored byte for byte")

	stored, err := s.images.GetByName(context.Background(), result.ImageName)
	s.Require().NoError(err)
	s.Equal(result.Image.ID, stored.ID)
	s.Equal(1.0, uploadCount(s.metrics, "stored"))
}

func (s *ServiceIntegrationTestSuite) TestUploadJPEGGetsJPGExtension() {
	result, err := s.images.Upload(context.Background(), service.Upload{
		Filename:    "face.jpeg",
		ContentType: "image/jpeg",
		Body:        bytes.NewReader(tu.JPEGBytes(s.T())),
	})
	s.Require().NoError(err)
	s.True(strings.HasSuffix(result.ImageName, ".jpg"))
}

func (s *ServiceIntegrationTestSuite) TestUploadRejectsDeclaredType() {
	_, err := s.images.Upload(context.Background(), service.Upload{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Body:        strings.NewReader("hello"),
	})
	s.ErrorIs(err, service.ErrUnsupportedMediaType)
	s.Empty(s.storedFiles())
	s.EqualValues(0, s.count("images"))
}

func (s *ServiceIntegrationTestSuite) TestUploadRejectsDisguisedContent() {
	_, err := s.images.Upload(context.Background(), service.Upload{
		Filename:    "fake.png",
		ContentType: "image/png",
		Body:        strings.NewReader("<html><script>alert(1)</script></html>"),
	})
	s.ErrorIs(err, service.ErrUnsupportedMediaType)
	s.Empty(s.storedFiles())
	s.Equal(1.0, uploadCount(s.metrics, "rejected"))
}

func (s *ServiceIntegrationTestSuite) TestUploadRemovesFileWhenRowFails() {
	tu.InjectFailure(s.T(), s.testDB.DB, tu.OpCreate, "images", -1, errors.New("disk full"))

	_, err := s.images.Upload(context.Background(), service.Upload{
		Filename:    "face.png",
		ContentType: "image/png",
		Body:        bytes.NewReader(tu.PNGBytes(s.T())),
	})
	s.Require().Error(err)
	s.Empty(s.storedFiles(), "orphaned file is removed")
	s.EqualValues(0, s.count("images"))
	s.Equal(1.0, uploadCount(s.metrics, "compensated"))
}

// recordingStore keeps what each Save received before handing it on.
type recordingStore struct {
	storage.Store
	seekable []bool
	bodies   [][]byte
}

func (r *recordingStore) Save(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	_, ok := body.(io.ReadSeeker)
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	r.seekable = append(r.seekable, ok)
	r.bodies = append(r.bodies, data)
	return r.Store.Save(ctx, name, contentType, bytes.NewReader(data))
}

func (s *ServiceIntegrationTestSuite) recordingImages() (*service.ImageService, *recordingStore) {
	local, err := storage.NewLocalStore(s.dataDir, "/data")
	s.Require().NoError(err)
	store := &recordingStore{Store: local}

	log := zap.NewNop()
	deps := repository.Deps{DB: s.testDB.DB, Policy: tu.FastRetryPolicy(), Log: log, Metrics: s.metrics}
	uow := database.NewTransactor(s.testDB.DB, tu.FastRetryPolicy(), log, s.metrics)
	return service.NewImageService(uow, repository.NewImageRepository(deps), store, s.metrics, log), store
}

// multipartFile returns content the way gin hands over an uploaded form file.
func (s *ServiceIntegrationTestSuite) multipartFile(content []byte) multipart.File {
	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	part, err := w.CreateFormFile("file", "face.png")
	s.Require().NoError(err)
	_, err = part.Write(content)
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, "/images/upload", &form)
	req.Header.Set("Content-Type", w.FormDataContentType())
	s.Require().NoError(req.ParseMultipartForm(1 << 20))
	s.T().Cleanup(func() { _ = req.MultipartForm.RemoveAll() })

	file, err := req.MultipartForm.File["file"][0].Open()
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = file.Close() })
	return file
}

func (s *ServiceIntegrationTestSuite) TestUploadPassesSeekableFileFromStart() {
	images, store := s.recordingImages()
	png := tu.PNGBytes(s.T())

	result, err := images.Upload(context.Background(), service.Upload{
		Filename:    "face.png",
		ContentType: "image/png",
		Body:        s.multipartFile(png),
	})
	s.Require().NoError(err)

	s.Equal([]bool{true}, store.seekable, "stores get a body they can size and re-read")
	s.Equal(png, store.bodies[0])
	content, err := os.ReadFile(result.StoredAt)
	s.Require().NoError(err)
	s.Equal(png, content)
}

func (s *ServiceIntegrationTestSuite) TestUploadPlainStreamKeepsSniffedHead() {
	images, store := s.recordingImages()
	png := tu.PNGBytes(s.T())

	_, err := images.Upload(context.Background(), service.Upload{
		Filename:    "face.png",
		ContentType: "image/png",
		Body:        iotest.OneByteReader(bytes.NewReader(png)),
	})
	s.Require().NoError(err)

	s.Equal([]bool{false}, store.seekable)
	s.Equal(png, store.bodies[0], "no bytes lost to sniffing")
}

func (s *ServiceIntegrationTestSuite) TestUploadSurvivesTransientRowFailure() {
	failure := tu.InjectFailure(s.T(), s.testDB.DB, tu.OpCreate, "images", 1, driver.ErrBadConn)

	result := s.uploadPNG()

	s.Equal(1, failure.Fired())
	s.Equal([]string{result.ImageName}, s.storedFiles(), "file is stored once")
	s.EqualValues(1, s.count("images"))
	s.Equal(1.0, uploadCount(s.metrics, "stored"))
}

func (s *ServiceIntegrationTestSuite) TestNextUnlabelledEmptyQueue() {
	_, err := s.images.NextUnlabelled(context.Background())
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *ServiceIntegrationTestSuite) TestDeleteImageRemovesAsset() {
	result := s.uploadPNG()

	s.Require().NoError(s.images.Delete(context.Background(), result.Image.ID))
	s.Empty(s.storedFiles())

	s.NoError(s.images.Delete(context.Background(), result.Image.ID), "deleting twice is not an error")
}

func (s *ServiceIntegrationTestSuite) TestDeleteUnknownImageLeavesStorageAlone() {
	kept := s.uploadPNG()

	s.NoError(s.images.Delete(context.Background(), "img-does-not-exist"))
	s.Equal([]string{kept.ImageName}, s.storedFiles())
	s.EqualValues(1, s.count("images"))
}

func (s *ServiceIntegrationTestSuite) TestCreateDefaultsVersion() {
	image, err := s.images.Create(context.Background(), models.ImageCreate{ImageName: "external.png"})
	s.Require().NoError(err)
	s.Equal(models.DefaultImageVersion, image.Version)

	_, err = s.images.Create(context.Background(), models.ImageCreate{ImageName: "external.png"})
	s.ErrorIs(err, repository.ErrConflict)
}

// Labels

func (s *ServiceIntegrationTestSuite) TestUploadLabelRead() {
	ctx := context.Background()
	result := s.uploadPNG()

	next, err := s.images.NextUnlabelled(ctx)
	s.Require().NoError(err)
	s.Equal(result.ImageName, next.ImageName)

	label, err := s.labels.Create(ctx, models.ImageLabelCreate{
		ImageName: result.ImageName,
		Prompt:    "portrait of a smiling man",
		Tags:      []string{"x", "y"},
		Gender:    "male",
	})
	s.Require().NoError(err)
	s.Equal(result.ImageName, label.ImageName)
	s.Equal([]string{"x", "y"}, label.Tags)

	image, err := s.images.Get(ctx, result.Image.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusLabelled, image.Status)
	s.Require().NotNil(image.Label)
	s.Equal([]string{"x", "y"}, image.Label.Tags)
	s.Equal("male", image.Label.Gender)

	_, err = s.images.NextUnlabelled(ctx)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *ServiceIntegrationTestSuite) TestLabelValidation() {
	s.uploadPNG()

	_, err := s.labels.Create(context.Background(), models.ImageLabelCreate{
		ImageName: "whatever.png",
		Prompt:    "p",
		Tags:      []string{"ok", "has,comma"},
		Gender:    "female",
	})
	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "tags[1]")
	s.EqualValues(0, s.count("image_labels"))
}

func (s *ServiceIntegrationTestSuite) TestLabelUnknownImage() {
	_, err := s.labels.Create(context.Background(), models.ImageLabelCreate{ImageName: "missing.png", Prompt: "p", Gender: "female"})
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *ServiceIntegrationTestSuite) TestLabelUpdateAndDelete() {
	ctx := context.Background()
	result := s.uploadPNG()
	label, err := s.labels.Create(ctx, models.ImageLabelCreate{ImageName: result.ImageName, Prompt: "p", Tags: []string{"a"}, Gender: "female"})
	s.Require().NoError(err)

	prompt := "updated prompt"
	updated, err := s.labels.Update(ctx, label.ID, models.ImageLabelUpdate{Prompt: &prompt})
	s.Require().NoError(err)
	s.Equal("updated prompt", updated.Prompt)
	s.Equal([]string{"a"}, updated.Tags)

	all, err := s.labels.List(ctx, repository.Page{})
	s.Require().NoError(err)
	s.Len(all, 1)

	s.Require().NoError(s.labels.Delete(ctx, label.ID))
	_, err = s.labels.Get(ctx, label.ID)
	s.ErrorIs(err, repository.ErrNotFound)
}

func TestServiceIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceIntegrationTestSuite))
}
