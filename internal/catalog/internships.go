package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/media"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// FileUploader загружает файл в бакет и возвращает его адрес.
type FileUploader interface {
	Upload(ctx context.Context, bucket media.Bucket, f media.File) (string, error)
}

// Internships управляет заявками на стажировку.
type Internships struct {
	*Service[model.InternshipApplication]
	uploader FileUploader
}

// NewInternships создаёт сервис заявок. Без загрузчика заявки с резюме отклоняются.
func NewInternships(src repository.Source, uploader FileUploader, audit *Audit, logger *zap.Logger) *Internships {
	return &Internships{
		Service:  NewService(repository.NewTable[model.InternshipApplication](src, repository.TableInternships, logger), "internship", audit, logger),
		uploader: uploader,
	}
}

// Apply сохраняет заявку посетителя со статусом pending. Резюме, если
// передано, загружается в бакет internships до сохранения заявки.
func (s *Internships) Apply(ctx context.Context, app *model.InternshipApplication, resume *media.File) (*model.InternshipApplication, error) {
	app.ID = ""
	app.Status = model.InternshipPending
	app.ResumeURL = ""
	if err := prepare(app); err != nil {
		return nil, err
	}

	if resume != nil {
		if s.uploader == nil {
			return nil, errors.New("resume uploads are not configured")
		}
		url, err := s.uploader.Upload(ctx, media.BucketInternships, *resume)
		if err != nil {
			if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrTooLarge) || errors.Is(err, media.ErrEmpty) {
				return nil, invalid(err)
			}
			return nil, fmt.Errorf("upload resume: %w", err)
		}
		app.ResumeURL = url
	}

	created, err := s.table.Create(ctx, app)
	if err != nil {
		return nil, err
	}
	s.audit.Info(ctx, "internship.apply", "internship application received", map[string]any{"id": created.ID})
	return created, nil
}

// SetStatus переводит заявку в новый статус.
func (s *Internships) SetStatus(ctx context.Context, id string, status model.InternshipStatus) ([]model.InternshipApplication, error) {
	switch status {
	case model.InternshipPending, model.InternshipUnderReview, model.InternshipAccepted, model.InternshipRejected:
	default:
		return nil, invalid(fmt.Errorf("unknown internship status %q", status))
	}
	return s.Patch(ctx, id, map[string]any{"status": status})
}
