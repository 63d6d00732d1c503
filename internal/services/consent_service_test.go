package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testSignature = "data:image/png;base64,iVBORw0KGgo="

func newTestReceipts(t *testing.T) *ReceiptIssuer {
	t.Helper()
	r, err := NewReceiptIssuer("test-receipt-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("receipt issuer: %v", err)
	}
	r.now = fixedNow
	return r
}

func TestConsentServiceSignAdult(t *testing.T) {
	store := newStubSurveyStore()
	receipts := newTestReceipts(t)
	svc := NewConsentService(store, receipts)
	svc.now = fixedNow
	svc.idGen = func() string { return "CONSENT" }

	res, err := svc.Sign(context.Background(), ConsentRequest{
		ParticipantName: " Jane Doe ",
		Signature:       testSignature,
		SignatureDate:   "2025-09-18",
	})
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if res.ID != "CONSENT" || res.State != StateConsentDone || res.Receipt == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(store.consents) != 1 {
		t.Fatalf("record not stored")
	}
	rec := store.consents[0]
	if rec.ParticipantName != "Jane Doe" || !rec.Completed || rec.IsMinor || rec.ParentDate != nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
	claims, err := receipts.Verify(res.Receipt)
	if err != nil || claims.Minor {
		t.Fatalf("receipt should verify as adult: %+v %v", claims, err)
	}
}

func TestConsentServiceSignMinorNeedsParent(t *testing.T) {
	store := newStubSurveyStore()
	svc := NewConsentService(store, newTestReceipts(t))

	_, err := svc.Sign(context.Background(), ConsentRequest{
		ParticipantName: "Sam",
		Signature:       testSignature,
		SignatureDate:   "2025-09-18",
		IsMinor:         true,
	})
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, f := range []string{"parentName", "parentSignature", "parentDate"} {
		if se.Fields[f] == "" {
			t.Fatalf("missing %s error: %+v", f, se.Fields)
		}
	}
	if len(store.consents) != 0 {
		t.Fatalf("invalid consent stored")
	}

	res, err := svc.Sign(context.Background(), ConsentRequest{
		ParticipantName: "Sam",
		Signature:       testSignature,
		SignatureDate:   "2025-09-18T10:00:00Z",
		IsMinor:         true,
		ParentName:      "Pat",
		ParentSignature: testSignature,
		ParentDate:      "2025-09-18",
	})
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if store.consents[0].ParentDate == nil || store.consents[0].ParentName != "Pat" {
		t.Fatalf("parent fields not stored: %+v", store.consents[0])
	}
	if claims, err := svc.receipts.Verify(res.Receipt); err != nil || !claims.Minor {
		t.Fatalf("receipt should carry minor claim: %v", err)
	}
}

func TestConsentServiceValidation(t *testing.T) {
	_, err := NewConsentService(newStubSurveyStore(), nil).Sign(context.Background(), ConsentRequest{
		Signature:     "not-an-image",
		SignatureDate: "someday",
	})
	se, ok := AsServiceError(err)
	if !ok {
		t.Fatalf("expected service error, got %v", err)
	}
	for _, f := range []string{"participantName", "signature", "signatureDate"} {
		if se.Fields[f] == "" {
			t.Fatalf("missing %s error: %+v", f, se.Fields)
		}
	}
}

func TestConsentServiceWithoutReceipts(t *testing.T) {
	res, err := NewConsentService(newStubSurveyStore(), nil).Sign(context.Background(), ConsentRequest{
		ParticipantName: "Jane",
		Signature:       testSignature,
		SignatureDate:   "2025-09-18",
	})
	if err != nil || res.Receipt != "" {
		t.Fatalf("expected no receipt: %+v %v", res, err)
	}
}

func TestConsentServiceStorageError(t *testing.T) {
	store := newStubSurveyStore()
	store.createErr = errors.New("disk full")
	_, err := NewConsentService(store, nil).Sign(context.Background(), ConsentRequest{
		ParticipantName: "Jane",
		Signature:       testSignature,
		SignatureDate:   "2025-09-18",
	})
	if !IsCode(err, ErrorStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestReceiptIssuer(t *testing.T) {
	r := newTestReceipts(t)
	tok, err := r.Issue(false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := r.Verify(tok); err != nil {
		t.Fatalf("verify: %v", err)
	}

	other, _ := NewReceiptIssuer("another-secret-0123456789abcdef", time.Hour)
	if _, err := other.Verify(tok); err == nil {
		t.Fatalf("receipt signed with another secret should fail")
	}

	r.now = func() time.Time { return fixedNow().Add(2 * time.Hour) }
	if _, err := r.Verify(tok); err == nil {
		t.Fatalf("expired receipt should fail")
	}

	if _, err := NewReceiptIssuer("short", time.Hour); err == nil {
		t.Fatalf("short secret should be rejected")
	}
}
