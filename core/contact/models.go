package contact

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
)

// Contact is a CRM contact. Ghost contacts are placeholders auto-created for an
// email/card seen in a payment import with no existing matching person; they are
// promoted to regular contacts once identified.
type Contact struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           null.String `json:"phone"`
	IsGhost         bool        `json:"is_ghost"`
	CardLast4       null.String `json:"card_last4"`
	CardFingerprint null.String `json:"card_fingerprint"`
	CreatedAt       time.Time   `json:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at"` // UTC
}

// NewContact holds the fields needed to create a Contact.
type NewContact struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

func (nc *NewContact) Validate(svc *Service) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	nc.Phone = core.CleanString(nc.Phone)
	if err := core.Validate.Struct(nc); err != nil {
		return err
	}
	return svc.checkEmailUniqueness(nc.Email)
}

// UpdateContact holds the fields that can be edited on a Contact.
type UpdateContact struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

func (uc *UpdateContact) Validate(svc *Service, current Contact) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Email = core.CleanString(uc.Email, true /* lower */)
	uc.Phone = core.CleanString(uc.Phone)
	if err := core.Validate.Struct(uc); err != nil {
		return err
	}
	if uc.Email != "" && uc.Email != current.Email {
		return svc.checkEmailUniqueness(uc.Email)
	}
	return nil
}

// QueryFilter applies AND operation on available fields.
// Search does a case-insensitive match on one of Name, Email or Phone.
type QueryFilter struct {
	Search      string    `query:"search"`
	IsGhost     *bool     `query:"is_ghost"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
