package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/repository"
	"github.com/spec-kit/candidate-registry/internal/storage"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

type candidateFixture struct {
	svc     *CandidateService
	repo    *repository.MemoryCandidateRepository
	history *repository.MemoryStatusHistoryRepository
	broker  *events.Broker
	blobDir string
}

func newCandidateFixture(t *testing.T) *candidateFixture {
	t.Helper()
	broker := events.NewBroker(zap.NewNop())
	t.Cleanup(broker.Close)

	blobDir := t.TempDir()
	blobs, err := storage.NewLocalStore(blobDir, "/files")
	require.NoError(t, err)

	repo := repository.NewMemoryCandidateRepository(broker)
	history := repository.NewMemoryStatusHistoryRepository()
	svc := NewCandidateService(CandidateDependencies{
		CandidateRepo: repo,
		HistoryRepo:   history,
		Blobs:         blobs,
		Feed:          broker,
		Roles:         newStubRoles(),
		Limits:        UploadLimits{MaxPhotoBytes: 64, MaxCertBytes: 128, MaxCertificates: 3},
		Logger:        zap.NewNop(),
	})
	return &candidateFixture{svc: svc, repo: repo, history: history, broker: broker, blobDir: blobDir}
}

func validRegistration() RegistrationInput {
	return RegistrationInput{
		Name:          "  Budi Santoso ",
		StudentID:     "2201001",
		Semester:      4,
		GPA:           3.75,
		Gender:        "Laki-laki",
		WhatsApp:      "08123456789",
		Email:         "Budi@Example.com",
		Experience:    "OSIS",
		VisionMission: "Melayani",
		Photo:         &Upload{Filename: "me.png", ContentType: "image/png", Size: 3, Reader: strings.NewReader("png")},
		Certificates: []Upload{
			{Filename: "a.pdf", ContentType: "application/pdf", Size: 4, Reader: strings.NewReader("cert")},
		},
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestRegisterCreatesSubmittedCandidate(t *testing.T) {
	f := newCandidateFixture(t)

	candidate, err := f.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.NotEmpty(t, candidate.ID)
	assert.Equal(t, domain.CandidateStatusSubmitted, candidate.Status)
	assert.Equal(t, "Budi Santoso", candidate.Name)
	assert.Equal(t, "budi@example.com", candidate.Email)
	assert.Equal(t, domain.GenderMale, candidate.Gender)
	assert.True(t, strings.HasPrefix(candidate.PhotoURL, "/files/photos/"))
	require.Len(t, candidate.CertificateURLs, 1)
	assert.True(t, strings.HasPrefix(candidate.CertificateURLs[0], "/files/certificates/"))
	assert.Equal(t, 2, countFiles(t, f.blobDir))
}

func TestRegisterValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*RegistrationInput)
		field  string
	}{
		"missing name":       {func(in *RegistrationInput) { in.Name = " " }, "name"},
		"semester too high":  {func(in *RegistrationInput) { in.Semester = 9 }, "semester"},
		"negative gpa":       {func(in *RegistrationInput) { in.GPA = -1 }, "gpa"},
		"unknown gender":     {func(in *RegistrationInput) { in.Gender = "x" }, "gender"},
		"bad email":          {func(in *RegistrationInput) { in.Email = "nope" }, "email"},
		"missing photo":      {func(in *RegistrationInput) { in.Photo = nil }, "photo"},
		"photo not an image": {func(in *RegistrationInput) { in.Photo.ContentType = "application/pdf" }, "photo"},
		"photo too large":    {func(in *RegistrationInput) { in.Photo.Size = 65 }, "photo"},
		"no certificates":    {func(in *RegistrationInput) { in.Certificates = nil }, "certificates"},
		"certificate too large": {func(in *RegistrationInput) {
			in.Certificates[0].Size = 129
		}, "certificates"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newCandidateFixture(t)
			input := validRegistration()
			tc.mutate(&input)

			_, err := f.svc.Register(context.Background(), input)
			require.Error(t, err)
			domainErr := apperrors.ToDomainError(err)
			assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
			assert.Contains(t, domainErr.Details, tc.field)
			assert.Zero(t, countFiles(t, f.blobDir))
		})
	}
}

func TestRegisterRejectsUnderstatedUploadSize(t *testing.T) {
	f := newCandidateFixture(t)
	input := validRegistration()
	input.Photo.Reader = strings.NewReader(strings.Repeat("x", 100))

	_, err := f.svc.Register(context.Background(), input)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Zero(t, countFiles(t, f.blobDir))
}

func TestRegisterDuplicateStudentID(t *testing.T) {
	f := newCandidateFixture(t)
	_, err := f.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), validRegistration())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, 2, countFiles(t, f.blobDir))
}

func TestRegisterStoreFailureRemovesUploads(t *testing.T) {
	f := newCandidateFixture(t)
	f.repo.FailWrites = errors.New("disk full")

	_, err := f.svc.Register(context.Background(), validRegistration())
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistenceFailure))
	assert.Zero(t, countFiles(t, f.blobDir))
}

func TestGetStatusView(t *testing.T) {
	f := newCandidateFixture(t)
	candidate, err := f.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	view, err := f.svc.GetStatus(context.Background(), candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, view.Progress)
	assert.False(t, view.Terminal)
	assert.False(t, view.Successful)

	_, err = f.repo.UpdateStatus(context.Background(), candidate.ID, domain.CandidateStatusRejected, "maaf")
	require.NoError(t, err)
	view, err = f.svc.GetStatus(context.Background(), candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, view.Progress)
	assert.True(t, view.Terminal)
	assert.False(t, view.Successful)
	assert.Equal(t, "maaf", view.AdminNote)

	_, err = f.svc.GetStatus(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	f := newCandidateFixture(t)
	candidate, err := f.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	ctx := context.Background()

	checks := map[string]func(domain.Actor) error{
		"get": func(a domain.Actor) error { _, err := f.svc.Get(ctx, candidate.ID, a); return err },
		"list": func(a domain.Actor) error {
			_, err := f.svc.List(ctx, repository.CandidateFilter{}, a)
			return err
		},
		"stats":   func(a domain.Actor) error { _, err := f.svc.Stats(ctx, a); return err },
		"history": func(a domain.Actor) error { _, err := f.svc.History(ctx, candidate.ID, a); return err },
		"delete":  func(a domain.Actor) error { return f.svc.Delete(ctx, candidate.ID, a) },
		"update": func(a domain.Actor) error {
			_, err := f.svc.UpdateProfile(ctx, candidate.ID, domain.CandidateProfileUpdate{}, a)
			return err
		},
		"watch": func(a domain.Actor) error {
			sub, err := f.svc.WatchAll(ctx, a, func(events.Change) {})
			if sub != nil {
				sub.Release()
			}
			return err
		},
	}
	for name, check := range checks {
		err := check(viewerActor)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized), name)
	}

	_, err = f.repo.GetByID(ctx, candidate.ID)
	assert.NoError(t, err, "record must survive unauthorized delete")
}

func TestUpdateProfileKeepsLifecycleFields(t *testing.T) {
	f := newCandidateFixture(t)
	ctx := context.Background()
	candidate, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	_, err = f.repo.UpdateStatus(ctx, candidate.ID, domain.CandidateStatusUnderReview, "cek")
	require.NoError(t, err)

	updated, err := f.svc.UpdateProfile(ctx, candidate.ID, domain.CandidateProfileUpdate{
		Name:          "Budi S.",
		StudentID:     "2201001",
		Semester:      5,
		GPA:           3.8,
		Gender:        domain.GenderMale,
		WhatsApp:      "0812",
		Email:         "budi@example.com",
		Experience:    "OSIS, BEM",
		VisionMission: "Melayani",
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "Budi S.", updated.Name)
	assert.Equal(t, 5, updated.Semester)
	assert.Equal(t, candidate.PhotoURL, updated.PhotoURL)
	assert.Equal(t, candidate.CertificateURLs, updated.CertificateURLs)

	stored, err := f.repo.GetByID(ctx, candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusUnderReview, stored.Status)
	assert.Equal(t, "cek", stored.AdminNote)

	_, err = f.svc.UpdateProfile(ctx, candidate.ID, domain.CandidateProfileUpdate{Name: "x"}, adminActor)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestDeleteRemovesRecordAndUploads(t *testing.T) {
	f := newCandidateFixture(t)
	ctx := context.Background()
	candidate, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, candidate.ID, adminActor))
	assert.Zero(t, countFiles(t, f.blobDir))

	_, err = f.svc.Get(ctx, candidate.ID, adminActor)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	err = f.svc.Delete(ctx, candidate.ID, adminActor)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestStatsIncludesEveryStatus(t *testing.T) {
	f := newCandidateFixture(t)
	ctx := context.Background()
	first, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	second := validRegistration()
	second.StudentID = "2201002"
	second.GPA = 3.25
	_, err = f.svc.Register(ctx, second)
	require.NoError(t, err)
	_, err = f.repo.UpdateStatus(ctx, first.ID, domain.CandidateStatusUnderReview, "")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 3.5, stats.AverageGPA, 0.001)
	assert.Equal(t, 1, stats.ByStatus[domain.CandidateStatusSubmitted])
	assert.Equal(t, 1, stats.ByStatus[domain.CandidateStatusUnderReview])
	assert.Contains(t, stats.ByStatus, domain.CandidateStatusApproved)
	assert.Contains(t, stats.ByStatus, domain.CandidateStatusRejected)
}

func TestListRejectsUnknownStatusFilter(t *testing.T) {
	f := newCandidateFixture(t)
	_, err := f.svc.List(context.Background(), repository.CandidateFilter{
		Statuses: []domain.CandidateStatus{"archived"},
	}, adminActor)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestHistoryFollowsTransitions(t *testing.T) {
	f := newCandidateFixture(t)
	ctx := context.Background()
	candidate, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	lifecycle := NewLifecycleService(LifecycleDependencies{
		CandidateRepo: f.repo,
		HistoryRepo:   f.history,
		Feed:          f.broker,
		Roles:         newStubRoles(),
	})
	_, err = lifecycle.RequestTransition(ctx, candidate.ID, "underReview", "", adminActor)
	require.NoError(t, err)

	entries, err := f.svc.History(ctx, candidate.ID, adminActor)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.CandidateStatusUnderReview, entries[0].NewStatus)
}
