package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"batchexport/internal/admin"
	"batchexport/internal/clock"
	"batchexport/internal/store"
	"batchexport/internal/submission"
)

type fakeSubmitter struct {
	jobKey string
	status string
	err    error
}

func (f *fakeSubmitter) Submit(ctx context.Context, req submission.Request) (string, string, error) {
	return f.jobKey, f.status, f.err
}

type fakeAdmin struct {
	status     admin.JobStatus
	statusErr  error
	redriveErr error
	dlq        []admin.DLQEntry
}

func (f *fakeAdmin) JobStatus(ctx context.Context, jobID string) (admin.JobStatus, error) {
	return f.status, f.statusErr
}
func (f *fakeAdmin) Redrive(ctx context.Context, inputID string) error { return f.redriveErr }
func (f *fakeAdmin) Cancel(ctx context.Context, jobID string, now time.Time) error { return nil }
func (f *fakeAdmin) ListDLQ(ctx context.Context, limit int) ([]admin.DLQEntry, error) {
	return f.dlq, nil
}

func TestHandleSubmitAccepted(t *testing.T) {
	s := New(&fakeSubmitter{jobKey: "J1", status: "SUBMITTED"}, &fakeAdmin{}, clock.NewFake(time.Now()), nil, nil)
	body := bytes.NewBufferString(`{"items":[{"indexKey":"idx","effectiveDate":20260101,"asofIndicator":"EOD"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobKey != "J1" {
		t.Fatalf("expected job key J1, got %s", resp.JobKey)
	}
}

func TestHandleSubmitValidationErrorIs400(t *testing.T) {
	s := New(&fakeSubmitter{err: &submission.ValidationError{Reason: "bad input"}}, &fakeAdmin{}, clock.NewFake(time.Now()), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"items":[]}`))
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleSubmitTooManyUnitsIs413(t *testing.T) {
	s := New(&fakeSubmitter{err: &submission.TooManyUnitsError{Count: 5, Max: 1}}, &fakeAdmin{}, clock.NewFake(time.Now()), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"items":[]}`))
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestHandleSubmitJobKeyConflictIs409(t *testing.T) {
	s := New(&fakeSubmitter{err: &submission.JobKeyConflictError{JobKey: "J1"}}, &fakeAdmin{}, clock.NewFake(time.Now()), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"items":[]}`))
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestHandleGetJobNotFoundIs404(t *testing.T) {
	s := New(&fakeSubmitter{}, &fakeAdmin{statusErr: store.ErrJobNotFound}, clock.NewFake(time.Now()), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleRedriveNotDLQIs409(t *testing.T) {
	s := New(&fakeSubmitter{}, &fakeAdmin{redriveErr: store.ErrUnitNotDLQ}, clock.NewFake(time.Now()), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/admin/units/u1/redrive", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}
