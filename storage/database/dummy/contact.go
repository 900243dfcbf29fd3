package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/contact"
)

type contactRepository struct {
	db *contactTable
}

var _ contact.Repository = (*contactRepository)(nil) // interface compliance check

func NewContactRepository(db *DB) contact.Repository {
	return &contactRepository{db: db.contact}
}

func (repo *contactRepository) query() []contact.Contact {
	contacts := make([]contact.Contact, 0, len(repo.db.table))
	for _, c := range repo.db.table {
		contacts = append(contacts, *c)
	}
	return contacts
}

func (repo *contactRepository) CreateContact(_ context.Context, c contact.Contact) (contact.Contact, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if c.Email != "" {
		for _, existing := range repo.db.table {
			if strings.EqualFold(existing.Email, c.Email) {
				return contact.Contact{}, contact.ErrEmailExists
			}
		}
	}
	c.ID = uuid.New().String()
	repo.db.table[c.ID] = &c
	return c, nil
}

func (repo *contactRepository) GetContactByID(_ context.Context, id string) (contact.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.table[id]; ok {
		return *c, nil
	}
	return contact.Contact{}, contact.ErrNotFound
}

func (repo *contactRepository) GetContactByEmail(_ context.Context, email string) (contact.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.query() {
		if c.Email != "" && strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return contact.Contact{}, contact.ErrNotFound
}

func (repo *contactRepository) FindContactsByCardFingerprint(_ context.Context, fp string) ([]contact.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var contacts []contact.Contact
	for _, c := range repo.query() {
		if c.CardFingerprint.String == fp {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

func (repo *contactRepository) FindContactsByCardLast4(_ context.Context, last4 string) ([]contact.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var contacts []contact.Contact
	for _, c := range repo.query() {
		if c.CardLast4.String == last4 {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

func (repo *contactRepository) FilterContacts(_ context.Context, filter contact.QueryFilter, _ ...core.DBOrdering) ([]contact.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	contacts := repo.query()

	// contacts with search keyword matching any Name, Email or Phone ?
	if filter.Search != "" {
		var filtered []contact.Contact
		search := strings.ToLower(filter.Search)
		for _, c := range contacts {
			if strings.Contains(strings.ToLower(c.Name), search) ||
				strings.Contains(strings.ToLower(c.Email), search) ||
				strings.Contains(strings.ToLower(c.Phone.String), search) {
				filtered = append(filtered, c)
			}
		}
		contacts = filtered
	}
	if contacts != nil && filter.IsGhost != nil {
		var filtered []contact.Contact
		for _, c := range contacts {
			if c.IsGhost == *filter.IsGhost {
				filtered = append(filtered, c)
			}
		}
		contacts = filtered
	}
	if contacts != nil && !filter.CreatedFrom.IsZero() {
		var filtered []contact.Contact
		timeUTC := filter.CreatedFrom.UTC()
		for _, c := range contacts {
			if c.CreatedAt.Equal(timeUTC) || c.CreatedAt.After(timeUTC) {
				filtered = append(filtered, c)
			}
		}
		contacts = filtered
	}
	if contacts != nil && !filter.CreatedTo.IsZero() {
		var filtered []contact.Contact
		timeUTC := filter.CreatedTo.UTC()
		for _, c := range contacts {
			if c.CreatedAt.Before(timeUTC) || c.CreatedAt.Equal(timeUTC) {
				filtered = append(filtered, c)
			}
		}
		contacts = filtered
	}

	sort.Slice(contacts, func(i, j int) bool { return contacts[i].CreatedAt.After(contacts[j].CreatedAt) })
	return contacts, nil
}

func (repo *contactRepository) QueryAllContacts(_ context.Context) ([]contact.Contact, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *contactRepository) UpdateContact(_ context.Context, c contact.Contact) (contact.Contact, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[c.ID]; !ok {
		return contact.Contact{}, contact.ErrNotFound
	}
	if c.Email != "" {
		for id, existing := range repo.db.table {
			if id != c.ID && strings.EqualFold(existing.Email, c.Email) {
				return contact.Contact{}, contact.ErrEmailExists
			}
		}
	}
	repo.db.table[c.ID] = &c
	return c, nil
}
