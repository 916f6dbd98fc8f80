package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/mpesa"
)

func TestInitiateCreatesPendingContribution(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)

	var got mpesa.PaymentRequest
	f.stk.requestPayment = func(_ context.Context, in mpesa.PaymentRequest) (mpesa.PaymentResponse, error) {
		got = in
		return mpesa.PaymentResponse{CheckoutRequestID: "CHK-1", MerchantRequestID: "M-1", ResponseCode: "0"}, nil
	}

	c := f.initiate(camp.ID, 500)
	if c.Status != models.ContributionPending || c.TransactionID != "CHK-1" || c.Amount != 500 {
		t.Fatalf("contribution = %+v", c)
	}
	if got.Phone != "254712345678" || got.AccountReference != AccountReference(camp.ID) {
		t.Fatalf("gateway request = %+v", got)
	}
	if f.getCampaign(camp.ID).CurrentAmount != 0 {
		t.Fatal("initiation must not touch the balance")
	}
}

func TestInitiateGatewayRejectionPersistsNothing(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	f.stk.requestPayment = func(context.Context, mpesa.PaymentRequest) (mpesa.PaymentResponse, error) {
		return mpesa.PaymentResponse{}, errors.New("connection reset")
	}

	_, err := f.collect.Initiate(context.Background(), InitiateInput{Phone: "0712345678", Amount: 10, CampaignID: camp.ID, UserID: f.member.ID})
	if !errors.Is(err, apperr.ErrGateway) {
		t.Fatalf("err = %v, want gateway error", err)
	}
	stale, _ := f.store.Contributions().ListStalePending(context.Background(), time.Now().Add(time.Hour), 10)
	if len(stale) != 0 {
		t.Fatalf("contribution persisted after rejection: %+v", stale)
	}
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	active := f.campaignIn(models.CampaignActive)
	pending := f.campaignIn(models.CampaignPendingApproval)

	tests := []struct {
		name string
		in   InitiateInput
		want error
	}{
		{"zero amount", InitiateInput{Phone: "0712345678", Amount: 0, CampaignID: active.ID, UserID: f.member.ID}, apperr.ErrValidation},
		{"bad phone", InitiateInput{Phone: "12", Amount: 10, CampaignID: active.ID, UserID: f.member.ID}, apperr.ErrValidation},
		{"missing campaign", InitiateInput{Phone: "0712345678", Amount: 10, CampaignID: "nope", UserID: f.member.ID}, apperr.ErrNotFound},
		{"campaign not active", InitiateInput{Phone: "0712345678", Amount: 10, CampaignID: pending.ID, UserID: f.member.ID}, apperr.ErrInvalidState},
		{"missing user", InitiateInput{Phone: "0712345678", Amount: 10, CampaignID: active.ID, UserID: "ghost"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.collect.Initiate(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := f.stk.seq.Load(); n != 0 {
		t.Fatalf("gateway called %d times for invalid input", n)
	}
}

func TestCallbackSettlesOnceAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	f.stk.requestPayment = func(context.Context, mpesa.PaymentRequest) (mpesa.PaymentResponse, error) {
		return mpesa.PaymentResponse{CheckoutRequestID: "CHK-1", ResponseCode: "0"}, nil
	}
	f.initiate(camp.ID, 750)

	outcome, err := f.collect.HandleCallback(context.Background(), stkSuccess("CHK-1", "MP1", 750))
	if err != nil || outcome != OutcomeProcessed {
		t.Fatalf("first delivery: %s %v", outcome, err)
	}
	c := f.getContribution("CHK-1")
	if c.Status != models.ContributionCompleted || c.MpesaCode == nil || *c.MpesaCode != "MP1" {
		t.Fatalf("contribution = %+v", c)
	}
	if got := f.getCampaign(camp.ID).CurrentAmount; got != 750 {
		t.Fatalf("balance = %d, want 750", got)
	}

	outcome, err = f.collect.HandleCallback(context.Background(), stkSuccess("CHK-1", "MP1", 750))
	if err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("second delivery: %s %v", outcome, err)
	}
	if got := f.getCampaign(camp.ID).CurrentAmount; got != 750 {
		t.Fatalf("balance after duplicate = %d, want 750", got)
	}
}

func TestCallbackFailureLeavesBalance(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	c := f.initiate(camp.ID, 300)

	outcome, err := f.collect.HandleCallback(context.Background(), stkFailure(c.TransactionID, "1032"))
	if err != nil || outcome != OutcomeProcessed {
		t.Fatalf("%s %v", outcome, err)
	}
	got := f.getContribution(c.TransactionID)
	if got.Status != models.ContributionFailed || got.MpesaCode != nil || got.ResultCode != "1032" {
		t.Fatalf("contribution = %+v", got)
	}
	if f.getCampaign(camp.ID).CurrentAmount != 0 {
		t.Fatal("failed payment changed the balance")
	}

	// a late success for a failed attempt is ignored
	outcome, _ = f.collect.HandleCallback(context.Background(), stkSuccess(c.TransactionID, "MP9", 300))
	if outcome != OutcomeDuplicate || f.getCampaign(camp.ID).CurrentAmount != 0 {
		t.Fatalf("terminal failure was overwritten: %s", outcome)
	}
}

func TestCallbackSameReceiptDifferentContributions(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	a := f.initiate(camp.ID, 100)
	b := f.initiate(camp.ID, 200)

	if o, err := f.collect.HandleCallback(context.Background(), stkSuccess(a.TransactionID, "DUPRCPT", 100)); err != nil || o != OutcomeProcessed {
		t.Fatalf("first: %s %v", o, err)
	}
	if o, err := f.collect.HandleCallback(context.Background(), stkSuccess(b.TransactionID, "DUPRCPT", 200)); err != nil || o != OutcomeDuplicate {
		t.Fatalf("second: %s %v", o, err)
	}
	if got := f.getCampaign(camp.ID).CurrentAmount; got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
	if got := f.getContribution(b.TransactionID); got.Status != models.ContributionPending {
		t.Fatalf("second contribution mutated: %+v", got)
	}
}

func TestCallbackBusinessOutcomes(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	c := f.initiate(camp.ID, 100)

	tests := []struct {
		name    string
		payload []byte
		want    Outcome
		wantErr error
	}{
		{"unknown id", stkSuccess("CHK-unknown", "R1", 1), OutcomeNotFound, nil},
		{"garbage", []byte(`<xml/>`), OutcomeMalformed, apperr.ErrMalformedCallback},
		{"no correlation id", []byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`), OutcomeMalformed, apperr.ErrMalformedCallback},
		{"success without receipt", []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"CheckoutRequestID":%q,"ResultCode":"0"}}}`, c.TransactionID)), OutcomeMalformed, apperr.ErrMalformedCallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.collect.HandleCallback(context.Background(), tt.payload)
			if got != tt.want {
				t.Fatalf("outcome = %s, want %s", got, tt.want)
			}
			if tt.wantErr == nil && err != nil || tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !apperr.IsBusiness(err) {
				t.Fatalf("business outcome reported as infrastructure error: %v", err)
			}
		})
	}
	if f.getContribution(c.TransactionID).Status != models.ContributionPending {
		t.Fatal("malformed callback mutated the contribution")
	}
}

func TestConcurrentDuplicateAndReorderedCallbacks(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)

	const n = 10
	var want int64
	contribs := make([]models.Contribution, n)
	for i := range contribs {
		amount := int64(100 * (i + 1))
		contribs[i] = f.initiate(camp.ID, amount)
		want += amount
	}

	var wg sync.WaitGroup
	// every callback delivered four times, all at once, newest first
	for rep := 0; rep < 4; rep++ {
		for i := n - 1; i >= 0; i-- {
			c := contribs[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.collect.HandleCallback(context.Background(), stkSuccess(c.TransactionID, "R-"+c.TransactionID, c.Amount))
				if err != nil {
					t.Errorf("callback %s: %v", c.TransactionID, err)
				}
			}()
		}
	}
	wg.Wait()

	if got := f.getCampaign(camp.ID).CurrentAmount; got != want {
		t.Fatalf("balance = %d, want %d", got, want)
	}
	for _, c := range contribs {
		if got := f.getContribution(c.TransactionID); got.Status != models.ContributionCompleted {
			t.Fatalf("%s status = %s", c.TransactionID, got.Status)
		}
	}
}

func TestReconcileIfStale(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	c := f.initiate(camp.ID, 400)

	f.stk.queryStatus = func(_ context.Context, id string) (mpesa.StatusResponse, error) {
		return mpesa.StatusResponse{CheckoutRequestID: id, ResultCode: "0", ResultDesc: "ok"}, nil
	}

	// fresh: no query
	got, err := f.collect.ReconcileIfStale(context.Background(), c.TransactionID)
	if err != nil || got.Status != models.ContributionPending {
		t.Fatalf("fresh: %+v %v", got, err)
	}
	if f.stk.queries.Load() != 0 {
		t.Fatal("gateway queried before the staleness threshold")
	}

	f.now = f.now.Add(31 * time.Second)
	got, err = f.collect.ReconcileIfStale(context.Background(), c.TransactionID)
	if err != nil || got.Status != models.ContributionCompleted {
		t.Fatalf("stale: %+v %v", got, err)
	}
	if got.MpesaCode != nil {
		t.Fatal("status query has no receipt to record")
	}
	if bal := f.getCampaign(camp.ID).CurrentAmount; bal != 400 {
		t.Fatalf("balance = %d", bal)
	}

	// the callback arriving afterwards fills the receipt without crediting again
	outcome, err := f.collect.HandleCallback(context.Background(), stkSuccess(c.TransactionID, "LATE1", 400))
	if err != nil || outcome != OutcomeProcessed {
		t.Fatalf("backfill: %s %v", outcome, err)
	}
	final := f.getContribution(c.TransactionID)
	if final.MpesaCode == nil || *final.MpesaCode != "LATE1" {
		t.Fatalf("receipt not backfilled: %+v", final)
	}
	if bal := f.getCampaign(camp.ID).CurrentAmount; bal != 400 {
		t.Fatalf("balance after backfill = %d", bal)
	}
}

func TestReconcileIfStaleSwallowsGatewayErrors(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	c := f.initiate(camp.ID, 400)
	f.now = f.now.Add(time.Minute)
	f.stk.queryStatus = func(context.Context, string) (mpesa.StatusResponse, error) {
		return mpesa.StatusResponse{}, apperr.Gateway("test", errors.New("The transaction is being processed"))
	}

	got, err := f.collect.ReconcileIfStale(context.Background(), c.TransactionID)
	if err != nil || got.Status != models.ContributionPending {
		t.Fatalf("got %+v %v", got, err)
	}

	// throttled: a second immediate check does not query again
	_, _ = f.collect.ReconcileIfStale(context.Background(), c.TransactionID)
	if q := f.stk.queries.Load(); q != 1 {
		t.Fatalf("queries = %d, want 1", q)
	}

	if _, err := f.collect.ReconcileIfStale(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
}

func TestReconcileIfStaleFailure(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	c := f.initiate(camp.ID, 400)
	f.now = f.now.Add(time.Minute)
	f.stk.queryStatus = func(_ context.Context, id string) (mpesa.StatusResponse, error) {
		return mpesa.StatusResponse{CheckoutRequestID: id, ResultCode: "1032", ResultDesc: "Request cancelled by user"}, nil
	}

	got, err := f.collect.ReconcileIfStale(context.Background(), c.TransactionID)
	if err != nil || got.Status != models.ContributionFailed {
		t.Fatalf("got %+v %v", got, err)
	}
	if f.getCampaign(camp.ID).CurrentAmount != 0 {
		t.Fatal("failed query changed the balance")
	}
}

func TestStatusForChecksOwnership(t *testing.T) {
	f := newFixture(t)
	camp := f.campaignIn(models.CampaignActive)
	c := f.initiate(camp.ID, 400)
	f.now = f.now.Add(time.Minute)

	if _, err := f.collect.StatusFor(context.Background(), c.TransactionID, f.admin.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("stranger err = %v", err)
	}
	if q := f.stk.queries.Load(); q != 0 {
		t.Fatalf("stranger triggered %d status queries", q)
	}

	got, err := f.collect.StatusFor(context.Background(), c.TransactionID, f.member.ID, false)
	if err != nil || got.ID != c.ID {
		t.Fatalf("owner: %+v %v", got, err)
	}
	if _, err := f.collect.StatusFor(context.Background(), c.TransactionID, f.admin.ID, true); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if _, err := f.collect.StatusFor(context.Background(), "missing", f.member.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
