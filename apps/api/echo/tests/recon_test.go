package tests

import (
	"net/http"
	"testing"

	. "github.com/coursepay/recon/apps/api/echo"
	"github.com/coursepay/recon/core/bepaid"
	"github.com/coursepay/recon/core/recon"
	"github.com/coursepay/recon/tests"
)

func Test_reconApi_queue(t *testing.T) {
	setup(t)
	batch, rows := stageFixture(t)

	rowsByUID := make(map[string]recon.StagedPayment, len(rows))
	for _, sp := range rows {
		rowsByUID[sp.ProviderUID] = sp
	}

	tests := []httpTest{
		{
			name: "whole queue", path: "/v1/recon/queue",
			wantData: marchallList(t, rows[0], rows[1], rows[2], rows[3]),
		},
		{
			name: "by batch", path: "/v1/recon/queue?batch=" + batch.ID,
			wantData: marchallList(t, rows[0], rows[1], rows[2], rows[3]),
		},
		{name: "unknown batch", path: "/v1/recon/queue?batch=nope", wantData: marchallList(t, []interface{}{}...)},
		{
			name: "conflicts only", path: "/v1/recon/queue?bucket=" + recon.BucketConflict,
			wantData: marchallList(t, rowsByUID["tx-3"]),
		},
		{
			name: "pending only", path: "/v1/recon/queue?resolution=" + recon.ResolutionPending,
			wantData: marchallList(t, rows[0], rows[1], rows[2], rows[3]),
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

func Test_reconApi_confirmRow(t *testing.T) {
	setup(t)
	_, rows := stageFixture(t)

	rowsByUID := make(map[string]recon.StagedPayment, len(rows))
	for _, sp := range rows {
		rowsByUID[sp.ProviderUID] = sp
	}
	jane, err := contactSvc.GetByEmail(ctx, "jane@test.by")
	if err != nil {
		t.Fatalf("GetByEmail() failed: %v", err)
	}

	t.Run("accepts the proposed match", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/recon/rows/"+rowsByUID["tx-1"].ID+"/confirm", []byte("{}"))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v: %s", rec.Code, rec.Body.String())
		}
		var sp recon.StagedPayment
		unmarchallObj(t, rec.Body.Bytes(), &sp)
		if sp.Resolution != recon.ResolutionConfirmed {
			t.Errorf("resolution = %q; want %q", sp.Resolution, recon.ResolutionConfirmed)
		}
	})

	t.Run("resolves a conflict with an explicit contact", func(t *testing.T) {
		body := marchallObj(t, ConfirmRowRequest{ContactID: jane.ID})
		req, rec := newRequest(http.MethodPost, "/v1/recon/rows/"+rowsByUID["tx-3"].ID+"/confirm", body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v: %s", rec.Code, rec.Body.String())
		}
		var sp recon.StagedPayment
		unmarchallObj(t, rec.Body.Bytes(), &sp)
		if sp.MatchContactID.String != jane.ID || sp.MatchStrategy != recon.StrategyManual || sp.MatchConfidence != 1 {
			t.Errorf("unexpected row: %+v", sp)
		}
	})

	t.Run("conflict without a contact fails", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "conflict rows need an explicit contact"}),
		}
		setup(t)
		_, rows := stageFixture(t)
		var conflictID string
		for _, sp := range rows {
			if sp.Bucket == recon.BucketConflict {
				conflictID = sp.ID
			}
		}
		req, rec := newRequest(http.MethodPost, "/v1/recon/rows/"+conflictID+"/confirm", []byte("{}"))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unknown row", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "staged payment not found"}),
		}
		req, rec := newRequest(http.MethodPost, "/v1/recon/rows/nope/confirm", []byte("{}"))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_reconApi_rejectRow(t *testing.T) {
	setup(t)
	_, rows := stageFixture(t)

	req, rec := newRequest(http.MethodPost, "/v1/recon/rows/"+rows[0].ID+"/reject")
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v: %s", rec.Code, rec.Body.String())
	}
	var sp recon.StagedPayment
	unmarchallObj(t, rec.Body.Bytes(), &sp)
	if sp.Resolution != recon.ResolutionRejected {
		t.Errorf("resolution = %q; want %q", sp.Resolution, recon.ResolutionRejected)
	}

	tt := httpTest{
		wantCode: http.StatusNotFound,
		wantData: marchallObj(t, httpErr{Error: "staged payment not found"}),
	}
	req, rec = newRequest(http.MethodPost, "/v1/recon/rows/nope/reject")
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func Test_reconApi_autolink(t *testing.T) {
	setup(t)
	jane := testutil.CreateContact(t, contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)
	p := testutil.CreatePayment(t, paymentRepo, "al-1", "", "jane@test.by", "Jane Doe", 100, "BYN", bepaid.StatusSucceeded)
	testutil.CreatePayment(t, paymentRepo, "al-2", "", "stranger@test.by", "Total Stranger", 200, "BYN", bepaid.StatusSucceeded)

	tt := httpTest{
		wantData: marchallObj(t, recon.AutolinkReport{Scanned: 2, Linked: 1, Unmatched: 1}),
	}
	req, rec := newRequest(http.MethodPost, "/v1/recon/autolink")
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)

	linked, err := paymentRepo.GetPaymentByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPaymentByID() failed: %v", err)
	}
	if linked.ContactID.String != jane.ID {
		t.Errorf("payment was not linked to %s: %+v", jane.ID, linked)
	}
}
