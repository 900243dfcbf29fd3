package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/coursepay/recon/apps/api/echo"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/order"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
	emailsvc "github.com/coursepay/recon/services/email"
	dummydb "github.com/coursepay/recon/storage/database/dummy"
)

var (
	app Server

	contactRepo contact.Repository
	orderRepo   order.Repository
	paymentRepo payment.Repository

	contactSvc *contact.Service
	reconSvc   *recon.Service
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func setup(t *testing.T) {
	t.Helper()

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	contactRepo = dummydb.NewContactRepository(db)
	orderRepo = dummydb.NewOrderRepository(db)
	paymentRepo = dummydb.NewPaymentRepository(db)
	reconRepo := dummydb.NewReconRepository(db)

	// set up services
	contactSvc = contact.NewService(contactRepo)
	orderSvc := order.NewService(orderRepo)
	paymentSvc := payment.NewService(paymentRepo)
	emailsvc.SentMessages = emailsvc.SentMessages[:0]
	reconSvc = recon.NewService(reconRepo, reconRepo, contactSvc, paymentRepo, emailsvc.NewConsoleServiceMock(), nopLogger{})

	// set up server
	app = NewServer(
		&Options{
			DisableReqLogs: true,
			ReconSvc:       reconSvc,
			ContactSvc:     contactSvc,
			OrderSvc:       orderSvc,
			PaymentSvc:     paymentSvc,
			Logger:         nopLogger{},
		},
	)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

// newUploadRequest builds a multipart POST with the given file under the "file" field.
func newUploadRequest(t *testing.T, path, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}
	if _, err = fw.Write(content); err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarchallObj(t *testing.T, data []byte, obj interface{}) {
	if err := json.Unmarshal(data, obj); err != nil {
		t.Fatalf("unmarchallObj() failed: %v", err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
