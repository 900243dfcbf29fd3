package tests

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/tests"
)

func Test_contactApi_create(t *testing.T) {
	setup(t)

	t.Run("name and email are required", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":  "this field is required",
				"email": "this field is required",
			}),
		}
		req, rec := newRequest(http.MethodPost, "/v1/contacts", []byte("{}"))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("email must be valid", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		}
		body := marchallObj(t, contact.NewContact{Name: "Jane Doe", Email: "nope"})
		req, rec := newRequest(http.MethodPost, "/v1/contacts", body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("creates the contact", func(t *testing.T) {
		body := marchallObj(t, contact.NewContact{Name: "Jane Doe", Email: " JANE@test.by ", Phone: "+375291234567"})
		req, rec := newRequest(http.MethodPost, "/v1/contacts", body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v: %s", rec.Code, rec.Body.String())
		}
		var c contact.Contact
		unmarchallObj(t, rec.Body.Bytes(), &c)
		if c.ID == "" || c.Name != "Jane Doe" || c.Email != "jane@test.by" || c.Phone.String != "+375291234567" || c.IsGhost {
			t.Errorf("unexpected contact: %+v", c)
		}
	})

	t.Run("email must be unique", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": contact.ErrEmailExists.Error()}),
		}
		body := marchallObj(t, contact.NewContact{Name: "Jane Again", Email: "jane@test.by"})
		req, rec := newRequest(http.MethodPost, "/v1/contacts", body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_contactApi_query(t *testing.T) {
	setup(t)

	now := time.Now().UTC()
	t1 := now.Add(-3 * time.Hour)
	t2 := now.Add(-2 * time.Hour)
	t3 := now.Add(-1 * time.Hour)

	jane := testutil.CreateContact(t, contactRepo, "Jane Doe", "jane@test.by", "+375291234567", "", "", false, t1)
	ivan := testutil.CreateContact(t, contactRepo, "Ivan Ivanov", "ivan@test.ru", "", "", "", false, t2)
	ghost := testutil.CreateContact(t, contactRepo, "Ghost Person", "ghost@test.by", "", "0051", "fp-1", true, t3)

	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "all, newest first", path: "/v1/contacts", wantData: marchallList(t, ghost, ivan, jane)},
		{name: "search (unknown)", path: "/v1/contacts?search=lol", wantData: empty},
		{name: "search=IVA", path: "/v1/contacts?search=IVA", wantData: marchallList(t, ivan)},
		{name: "search by phone", path: "/v1/contacts?search=%2B375291234567", wantData: marchallList(t, jane)},
		{name: "is_ghost=true", path: "/v1/contacts?is_ghost=true", wantData: marchallList(t, ghost)},
		{name: "is_ghost=false", path: "/v1/contacts?is_ghost=false", wantData: marchallList(t, ivan, jane)},
		{
			name: "created_from", path: "/v1/contacts?" + url.Values{"created_from": {t2.Format(time.RFC3339)}}.Encode(),
			wantData: marchallList(t, ghost, ivan),
		},
		{
			name: "created_to", path: "/v1/contacts?" + url.Values{"created_to": {t2.Add(time.Minute).Format(time.RFC3339)}}.Encode(),
			wantData: marchallList(t, ivan, jane),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_contactApi_retrieve(t *testing.T) {
	setup(t)
	jane := testutil.CreateContact(t, contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)

	tests := []httpTest{
		{name: "found", path: "/v1/contacts/" + jane.ID, wantData: marchallObj(t, jane)},
		{
			name: "not found", path: "/v1/contacts/nope",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "contact not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_contactApi_update(t *testing.T) {
	setup(t)
	jane := testutil.CreateContact(t, contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)
	testutil.CreateContact(t, contactRepo, "Ivan Ivanov", "ivan@test.ru", "", "", "", false)

	t.Run("updates the contact", func(t *testing.T) {
		body := marchallObj(t, contact.UpdateContact{Name: "Jane A. Doe"})
		req, rec := newRequest(http.MethodPut, "/v1/contacts/"+jane.ID, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v: %s", rec.Code, rec.Body.String())
		}
		var c contact.Contact
		unmarchallObj(t, rec.Body.Bytes(), &c)
		if c.Name != "Jane A. Doe" || c.Email != "jane@test.by" {
			t.Errorf("unexpected contact: %+v", c)
		}
	})

	t.Run("cannot take another contact's email", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": contact.ErrEmailExists.Error()}),
		}
		body := marchallObj(t, contact.UpdateContact{Email: "ivan@test.ru"})
		req, rec := newRequest(http.MethodPut, "/v1/contacts/"+jane.ID, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_contactApi_promote(t *testing.T) {
	setup(t)
	ghost := testutil.CreateContact(t, contactRepo, "", "ghost@test.by", "", "0051", "fp-1", true)

	body := marchallObj(t, contact.UpdateContact{Name: "Identified Person"})
	req, rec := newRequest(http.MethodPost, "/v1/contacts/"+ghost.ID+"/promote", body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v: %s", rec.Code, rec.Body.String())
	}
	var c contact.Contact
	unmarchallObj(t, rec.Body.Bytes(), &c)
	if c.IsGhost || c.Name != "Identified Person" || c.CardLast4.String != "0051" {
		t.Errorf("unexpected contact: %+v", c)
	}
}

func Test_contactApi_queryOrders(t *testing.T) {
	setup(t)
	jane := testutil.CreateContact(t, contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)
	ivan := testutil.CreateContact(t, contactRepo, "Ivan Ivanov", "ivan@test.ru", "", "", "", false)
	o1 := testutil.CreateOrder(t, orderRepo, jane.ID, "Course X", 9990, "BYN")
	o2 := testutil.CreateOrder(t, orderRepo, jane.ID, "Course Y", 5000, "BYN")

	tests := []httpTest{
		{name: "contact orders", path: "/v1/contacts/" + jane.ID + "/orders", wantData: marchallList(t, o1, o2)},
		{name: "no orders", path: "/v1/contacts/" + ivan.ID + "/orders", wantData: marchallList(t, []interface{}{}...)},
		{
			name: "unknown contact", path: "/v1/contacts/nope/orders",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "contact not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
