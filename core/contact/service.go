package contact

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
)

var (
	// errors
	ErrNotFound    = errors.New("contact not found")
	ErrEmailExists = errors.New("a contact with this email already exists")
)

type (
	Repository interface {
		CreateContact(ctx context.Context, c Contact) (Contact, error)
		GetContactByID(ctx context.Context, id string) (Contact, error)
		GetContactByEmail(ctx context.Context, email string) (Contact, error)
		FindContactsByCardFingerprint(ctx context.Context, fp string) ([]Contact, error)
		FindContactsByCardLast4(ctx context.Context, last4 string) ([]Contact, error)
		// FilterContacts applies AND operation on available QueryFilter fields.
		FilterContacts(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Contact, error)
		QueryAllContacts(ctx context.Context) ([]Contact, error)
		UpdateContact(ctx context.Context, c Contact) (Contact, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkEmailUniqueness(email string) error {
	if email == "" {
		return nil
	}
	if _, err := svc.repo.GetContactByEmail(context.Background(), email); err == nil {
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if err != ErrNotFound {
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewContact) (Contact, error) {
	now := time.Now().UTC()
	c := Contact{
		Name:      nc.Name,
		Email:     nc.Email,
		Phone:     null.NewString(nc.Phone, nc.Phone != ""),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateContact(ctx, c)
}

// CreateGhost creates a placeholder contact for an identity seen in an import
// with no existing match. At least one of email/fingerprint/last4 must be set.
func (svc *Service) CreateGhost(ctx context.Context, name, email, phone, last4, fingerprint string) (Contact, error) {
	if email == "" && fingerprint == "" && last4 == "" {
		return Contact{}, core.NewValidationError(errors.New("ghost contact needs an email or a card"))
	}
	now := time.Now().UTC()
	c := Contact{
		Name:            core.CleanString(name),
		Email:           core.CleanString(email, true /* lower */),
		Phone:           null.NewString(phone, phone != ""),
		IsGhost:         true,
		CardLast4:       null.NewString(last4, last4 != ""),
		CardFingerprint: null.NewString(fingerprint, fingerprint != ""),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateContact(ctx, c)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Contact, error) {
	return svc.repo.GetContactByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Contact, error) {
	return svc.repo.GetContactByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Contact, error) {
	return svc.repo.FilterContacts(ctx, filter, ordering...)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Contact, error) {
	return svc.repo.QueryAllContacts(ctx)
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateContact) (Contact, error) {
	c, err := svc.repo.GetContactByID(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	if uc.Name != "" {
		c.Name = uc.Name
	}
	if uc.Email != "" {
		c.Email = uc.Email
	}
	if uc.Phone != "" {
		c.Phone = null.StringFrom(uc.Phone)
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateContact(ctx, c)
}

// PromoteGhost turns a ghost contact into a regular one once identified.
func (svc *Service) PromoteGhost(ctx context.Context, id string, uc UpdateContact) (Contact, error) {
	c, err := svc.repo.GetContactByID(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	if !c.IsGhost {
		return c, nil
	}
	if uc.Name != "" {
		c.Name = uc.Name
	}
	if uc.Email != "" {
		c.Email = uc.Email
	}
	if uc.Phone != "" {
		c.Phone = null.StringFrom(uc.Phone)
	}
	c.IsGhost = false
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateContact(ctx, c)
}
