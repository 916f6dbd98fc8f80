package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/cache"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/mpesa"
	"github.com/baharkarakas/welfare-backend/internal/repository/memory"
	"go.uber.org/zap"
)

type fakeCollectionGateway struct {
	requestPayment func(ctx context.Context, in mpesa.PaymentRequest) (mpesa.PaymentResponse, error)
	queryStatus    func(ctx context.Context, id string) (mpesa.StatusResponse, error)
	seq            atomic.Int64
	queries        atomic.Int64
}

func (f *fakeCollectionGateway) RequestPayment(ctx context.Context, in mpesa.PaymentRequest) (mpesa.PaymentResponse, error) {
	if f.requestPayment != nil {
		return f.requestPayment(ctx, in)
	}
	n := f.seq.Add(1)
	return mpesa.PaymentResponse{
		MerchantRequestID: fmt.Sprintf("m-%d", n),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", n),
		ResponseCode:      "0",
	}, nil
}

func (f *fakeCollectionGateway) QueryStatus(ctx context.Context, id string) (mpesa.StatusResponse, error) {
	f.queries.Add(1)
	if f.queryStatus != nil {
		return f.queryStatus(ctx, id)
	}
	return mpesa.StatusResponse{CheckoutRequestID: id}, nil
}

type fakePayoutGateway struct {
	mu      sync.Mutex
	calls   []mpesa.PayoutRequest
	respond func(in mpesa.PayoutRequest) (mpesa.PayoutResponse, error)
}

func (f *fakePayoutGateway) RequestPayout(_ context.Context, in mpesa.PayoutRequest) (mpesa.PayoutResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	n := len(f.calls)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(in)
	}
	return mpesa.PayoutResponse{
		ConversationID:           fmt.Sprintf("AG_%d", n),
		OriginatorConversationID: fmt.Sprintf("ORIG_%d", n),
		ResponseCode:             "0",
	}, nil
}

func (f *fakePayoutGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	t        *testing.T
	store    *memory.Store
	coord    *cache.Local
	stk      *fakeCollectionGateway
	b2c      *fakePayoutGateway
	campaign *CampaignService
	collect  *CollectionService
	disburse *DisbursementService
	now      time.Time
	admin    models.User
	member   models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		store: memory.NewStore(),
		coord: cache.NewLocal(),
		stk:   &fakeCollectionGateway{},
		b2c:   &fakePayoutGateway{},
		now:   time.Now().UTC(),
	}
	log := zap.NewNop()
	clk := func() time.Time { return f.now }
	f.campaign = NewCampaignService(f.store, log)
	f.collect = NewCollectionService(f.store, f.stk, f.coord, log, CollectionOptions{StaleAfter: 30 * time.Second, QueryThrottle: 10 * time.Second})
	f.disburse = NewDisbursementService(f.store, f.b2c, f.coord, log)
	f.campaign.now, f.collect.now, f.disburse.now = clk, clk, clk

	ctx := context.Background()
	var err error
	if f.admin, err = f.store.Users().Create(ctx, models.User{AdmissionNumber: "ADM-1", FullName: "Admin One", Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if f.member, err = f.store.Users().Create(ctx, models.User{AdmissionNumber: "STU-1", FullName: "Member One", Email: "member@example.com", Role: models.RoleMember, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	return f
}

// campaignIn creates a campaign and walks it to the given status.
func (f *fixture) campaignIn(status models.CampaignStatus) models.Campaign {
	f.t.Helper()
	ctx := context.Background()
	c, err := f.campaign.Create(ctx, f.member.ID, CreateCampaignInput{
		Title:       "Medical bill",
		Description: "help a student",
		Category:    models.CategoryMedical,
		GoalAmount:  200000,
		EndDate:     f.now.Add(30 * 24 * time.Hour),
	})
	if err != nil {
		f.t.Fatalf("create campaign: %v", err)
	}
	if status == models.CampaignPendingApproval {
		return c
	}
	if c, err = f.campaign.Approve(ctx, f.admin.ID, c.ID); err != nil {
		f.t.Fatalf("approve: %v", err)
	}
	if status == models.CampaignActive {
		return c
	}
	if c, err = f.campaign.End(ctx, f.admin.ID, c.ID); err != nil {
		f.t.Fatalf("end: %v", err)
	}
	if status != models.CampaignEnded {
		f.t.Fatalf("fixture cannot reach %s", status)
	}
	return c
}

// fund credits the campaign balance directly.
func (f *fixture) fund(campaignID string, amount int64) {
	f.t.Helper()
	if _, err := f.store.Campaigns().AddAmount(context.Background(), campaignID, amount); err != nil {
		f.t.Fatalf("fund: %v", err)
	}
}

func (f *fixture) getCampaign(id string) models.Campaign {
	f.t.Helper()
	c, err := f.store.Campaigns().GetByID(context.Background(), id)
	if err != nil {
		f.t.Fatalf("get campaign: %v", err)
	}
	return c
}

func (f *fixture) getContribution(txID string) models.Contribution {
	f.t.Helper()
	c, err := f.store.Contributions().GetByTransactionID(context.Background(), txID)
	if err != nil {
		f.t.Fatalf("get contribution: %v", err)
	}
	return c
}

func (f *fixture) initiate(campaignID string, amount int64) models.Contribution {
	f.t.Helper()
	c, err := f.collect.Initiate(context.Background(), InitiateInput{
		Phone: "0712345678", Amount: amount, CampaignID: campaignID, UserID: f.member.ID,
	})
	if err != nil {
		f.t.Fatalf("initiate: %v", err)
	}
	return c
}

func stkSuccess(checkoutID, receipt string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":%q}]}}}}`, checkoutID, amount, receipt))
}

func stkFailure(checkoutID, code string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"CheckoutRequestID":%q,"ResultCode":%q,"ResultDesc":"Request cancelled by user"}}}`, checkoutID, code))
}

func b2cResult(conversationID, code, receipt string) []byte {
	return []byte(fmt.Sprintf(`{"Result":{"ResultType":0,"ResultCode":%q,"ResultDesc":"desc-%s","ConversationID":%q,"TransactionID":%q}}`,
		code, code, conversationID, receipt))
}

func b2cTimeout(conversationID string) []byte {
	return []byte(fmt.Sprintf(`{"Result":{"ConversationID":%q}}`, conversationID))
}
