package shortener

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sundayezeilo/linkusage/internal/errx"
)

const MaxURLLength = 2048

// Service is the caller of the repositories: it owns the policy the
// repositories leave out, namely that deleted mappings are gone for creation
// and resolution, and that usage is recorded only for active mappings.
type Service interface {
	Create(ctx context.Context, initialURL string) (Mapping, bool, error)
	Get(ctx context.Context, id int64) (Mapping, error)
	Resolve(ctx context.Context, id int64, client Client) (Mapping, error)
	ResolveShortURL(ctx context.Context, shortURL string, client Client) (Mapping, error)
	Delete(ctx context.Context, id int64) (Mapping, error)
	Status(ctx context.Context, id int64, fullInfo bool, page Pagination) (UsageStatus, error)
	Ping(ctx context.Context) (time.Duration, error)
}

type service struct {
	mappings MappingRepository
	usages   UsageRepository
	pinger   Pinger
}

// ServiceConfig holds optional collaborators of the service.
type ServiceConfig struct {
	Pinger Pinger
}

// NewService creates a new service instance.
func NewService(mappings MappingRepository, usages UsageRepository, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	return &service{
		mappings: mappings,
		usages:   usages,
		pinger:   config.Pinger,
	}
}

func (s *service) Create(ctx context.Context, initialURL string) (Mapping, bool, error) {
	const op = "shortener.service.Create"

	if err := validateURL(initialURL); err != nil {
		return Mapping{}, false, errx.E(op, errx.Invalid, err)
	}

	m, created, err := s.mappings.CreateOrGet(ctx, initialURL)
	if err != nil {
		return Mapping{}, false, errx.E(op, errx.KindOf(err), err)
	}
	if !m.Active() {
		return m, false, errx.E(op, errx.AlreadyDeleted,
			fmt.Errorf("mapping %d for this url: %w", m.ID, ErrAlreadyDeleted))
	}
	return m, created, nil
}

func (s *service) Get(ctx context.Context, id int64) (Mapping, error) {
	const op = "shortener.service.Get"

	m, err := s.mappings.GetByID(ctx, id)
	if err != nil {
		return Mapping{}, errx.E(op, errx.KindOf(err), err)
	}
	return m, nil
}

func (s *service) Resolve(ctx context.Context, id int64, client Client) (Mapping, error) {
	const op = "shortener.service.Resolve"

	m, err := s.mappings.GetByID(ctx, id)
	if err != nil {
		return Mapping{}, errx.E(op, errx.KindOf(err), err)
	}
	return s.track(ctx, op, m, client)
}

func (s *service) ResolveShortURL(ctx context.Context, shortURL string, client Client) (Mapping, error) {
	const op = "shortener.service.ResolveShortURL"

	if shortURL == "" {
		return Mapping{}, errx.E(op, errx.Invalid, errors.New("short url cannot be empty"))
	}

	m, err := s.mappings.GetByShortURL(ctx, shortURL)
	if err != nil {
		return Mapping{}, errx.E(op, errx.KindOf(err), err)
	}
	return s.track(ctx, op, m, client)
}

// track records one usage event for an active mapping.
func (s *service) track(ctx context.Context, op string, m Mapping, client Client) (Mapping, error) {
	if !m.Active() {
		return m, errx.E(op, errx.AlreadyDeleted, fmt.Errorf("mapping %d: %w", m.ID, ErrAlreadyDeleted))
	}
	if _, err := s.usages.RecordUsage(ctx, m.ID, client.Host, client.Port); err != nil {
		return Mapping{}, errx.E(op, errx.KindOf(err), err)
	}
	return m, nil
}

func (s *service) Delete(ctx context.Context, id int64) (Mapping, error) {
	const op = "shortener.service.Delete"

	m, err := s.mappings.SoftDelete(ctx, id)
	if err != nil {
		return Mapping{}, errx.E(op, errx.KindOf(err), err)
	}
	return m, nil
}

// Status reports usage for an existing mapping. Deleted mappings keep their
// history and still answer.
func (s *service) Status(ctx context.Context, id int64, fullInfo bool, page Pagination) (UsageStatus, error) {
	const op = "shortener.service.Status"

	if fullInfo {
		if err := page.Validate(); err != nil {
			return UsageStatus{}, errx.E(op, errx.Invalid, err)
		}
	}

	if _, err := s.mappings.GetByID(ctx, id); err != nil {
		return UsageStatus{}, errx.E(op, errx.KindOf(err), err)
	}

	status, err := s.usages.Status(ctx, id, fullInfo, page)
	if err != nil {
		return UsageStatus{}, errx.E(op, errx.KindOf(err), err)
	}
	return status, nil
}

func (s *service) Ping(ctx context.Context) (time.Duration, error) {
	const op = "shortener.service.Ping"

	start := time.Now()
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			return 0, errx.E(op, errx.Unavailable, err)
		}
	}
	return time.Since(start), nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url cannot be empty")
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("url too long (max %d characters)", MaxURLLength)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid url format")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return errors.New("url must include host")
	}
	return nil
}
