package inventory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
	"github.com/lifelink/lifelink/internal/platform/websocket"
)

// -- Mock Repository --

type mockUnitRepo struct {
	mu     sync.Mutex
	store  map[uuid.UUID]*BloodUnit
	donors map[uuid.UUID]bool
	// stolen simulates concurrent claims winning units between the count
	// and the claim.
	stolen int
}

func newMockUnitRepo() *mockUnitRepo {
	return &mockUnitRepo{store: make(map[uuid.UUID]*BloodUnit), donors: make(map[uuid.UUID]bool)}
}

func (m *mockUnitRepo) CountAvailable(_ context.Context) (map[BloodType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[BloodType]int)
	for _, u := range m.store {
		if u.Status == StatusAvailable {
			out[u.BloodType]++
		}
	}
	return out, nil
}

func (m *mockUnitRepo) CountAvailableByType(ctx context.Context, bt BloodType) (int, error) {
	counts, _ := m.CountAvailable(ctx)
	return counts[bt], nil
}

func (m *mockUnitRepo) CreateBatch(_ context.Context, units []*BloodUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range units {
		u.ID = uuid.New()
		u.CreatedAt = time.Now()
		m.store[u.ID] = u
	}
	return nil
}

func (m *mockUnitRepo) available(bt BloodType) []*BloodUnit {
	var out []*BloodUnit
	for _, u := range m.store {
		if u.BloodType == bt && u.Status == StatusAvailable {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out
}

func (m *mockUnitRepo) ClaimAvailable(_ context.Context, bt BloodType, n int, hospitalID *uuid.UUID, by uuid.UUID) ([]*BloodUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	avail := m.available(bt)
	if m.stolen > 0 {
		k := m.stolen
		if k > len(avail) {
			k = len(avail)
		}
		avail = avail[k:]
	}
	if n > len(avail) {
		n = len(avail)
	}
	claimed := avail[:n]
	for _, u := range claimed {
		u.Status = StatusUsed
		u.HospitalID = hospitalID
		u.UpdatedBy = &by
	}
	return claimed, nil
}

func (m *mockUnitRepo) List(_ context.Context, f UnitFilter, limit, offset int) ([]*BloodUnit, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BloodUnit
	for _, u := range m.store {
		if (f.BloodType == "" || u.BloodType == f.BloodType) && (f.Status == "" || u.Status == f.Status) {
			out = append(out, u)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockUnitRepo) ListAvailableWithDonors(_ context.Context, bt BloodType) ([]*DonorUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DonorUnit
	for _, u := range m.available(bt) {
		d := &DonorUnit{UnitID: u.ID, BloodType: u.BloodType, DonorID: u.DonorID, Manual: u.DonorID == nil}
		if u.ManualDonorName != nil {
			d.DonorName = *u.ManualDonorName
			d.DonorPhone = *u.ManualDonorPhone
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *mockUnitRepo) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.store {
		if u.Status == StatusAvailable && u.ExpiryDate.Before(now) {
			u.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (m *mockUnitRepo) DonorExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.donors[id], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func newTestService() (*Service, *mockUnitRepo) {
	repo := newMockUnitRepo()
	return NewService(repo, db.NoopTxRunner{}, nil, nil, zerolog.Nop()), repo
}

var testAdmin = auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}

func addManual(t *testing.T, svc *Service, bt string, qty int) {
	t.Helper()
	_, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{
		BloodType: bt, Quantity: Quantity(qty), Action: ActionAdd,
		ManualDonorName: "Walk-in", ManualDonorPhone: "555-0100",
	})
	if err != nil {
		t.Fatalf("add %d %s: %v", qty, bt, err)
	}
}

// -- Stock --

func TestService_Stock_AllTypesInOrder(t *testing.T) {
	svc, _ := newTestService()
	addManual(t, svc, "O-", 3)
	addManual(t, svc, "AB+", 1)

	got, err := svc.Stock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []StockEntry{
		{APos, 0}, {ANeg, 0}, {BPos, 0}, {BNeg, 0},
		{OPos, 0}, {ONeg, 3}, {ABPos, 1}, {ABNeg, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stock mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Stock_IgnoresNonAvailable(t *testing.T) {
	svc, repo := newTestService()
	addManual(t, svc, "A+", 2)
	for _, u := range repo.store {
		u.Status = StatusExpired
		break
	}
	got, _ := svc.Stock(context.Background())
	if got[0].Units != 1 {
		t.Errorf("expected 1 available A+, got %d", got[0].Units)
	}
}

// -- Adjust --

func TestService_Adjust_AddManual(t *testing.T) {
	svc, repo := newTestService()
	entry, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{
		BloodType: "B+", Quantity: 3, Action: ActionAdd,
		ManualDonorName: "Jane", ManualDonorPhone: "555-0101",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Units != 3 || entry.BloodType != BPos {
		t.Errorf("unexpected entry: %+v", entry)
	}
	for _, u := range repo.store {
		if u.DonorID != nil {
			t.Error("expected manual unit without donor id")
		}
		if *u.UpdatedBy != testAdmin.UserID {
			t.Error("expected updated_by to be the admin")
		}
		if !u.ExpiryDate.Equal(u.DonationDate.AddDate(0, 0, 42)) {
			t.Errorf("expected expiry 42 days after donation, got %v -> %v", u.DonationDate, u.ExpiryDate)
		}
	}
}

func TestService_Adjust_AddRegisteredDonor(t *testing.T) {
	svc, repo := newTestService()
	donor := uuid.New()
	repo.donors[donor] = true
	donated := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{
		BloodType: "O+", Quantity: 1, Action: ActionAdd, DonorID: donor.String(), DonationDate: &donated,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, u := range repo.store {
		if u.DonorID == nil || *u.DonorID != donor {
			t.Error("expected donor id on unit")
		}
		want := time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC)
		if !u.ExpiryDate.Equal(want) {
			t.Errorf("expected expiry %v, got %v", want, u.ExpiryDate)
		}
	}
}

func TestService_Adjust_AddUnknownDonor(t *testing.T) {
	svc, _ := newTestService()
	donor := uuid.New()
	_, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{
		BloodType: "O+", Quantity: 1, Action: ActionAdd, DonorID: donor.String(),
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Adjust_DonorAndManualTogether(t *testing.T) {
	svc, repo := newTestService()
	donor := uuid.New()
	repo.donors[donor] = true

	_, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{
		BloodType: "O+", Quantity: 1, Action: ActionAdd, DonorID: donor.String(),
		ManualDonorName: "Jane Doe", ManualDonorPhone: "555-1111",
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if len(repo.store) != 0 {
		t.Error("expected no units created")
	}
}

func TestQuantity_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Quantity
		wantErr bool
	}{
		{`4`, 4, false},
		{`"4"`, 4, false},
		{`""`, 0, false},
		{`"two"`, 0, true},
	}
	for _, tt := range tests {
		var q Quantity
		err := q.UnmarshalJSON([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: unexpected error %v", tt.in, err)
		}
		if !tt.wantErr && q != tt.want {
			t.Errorf("%s: got %d, want %d", tt.in, q, tt.want)
		}
	}
}

func TestService_Adjust_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  AdjustRequest
	}{
		{"bad blood type", AdjustRequest{BloodType: "C+", Quantity: 1, Action: ActionAdd, ManualDonorName: "a", ManualDonorPhone: "b"}},
		{"zero quantity", AdjustRequest{BloodType: "A+", Quantity: 0, Action: ActionAdd, ManualDonorName: "a", ManualDonorPhone: "b"}},
		{"no donor", AdjustRequest{BloodType: "A+", Quantity: 1, Action: ActionAdd}},
		{"name without phone", AdjustRequest{BloodType: "A+", Quantity: 1, Action: ActionAdd, ManualDonorName: "a"}},
		{"blank donor id", AdjustRequest{BloodType: "A+", Quantity: 1, Action: ActionAdd, DonorID: "  "}},
		{"malformed donor id", AdjustRequest{BloodType: "A+", Quantity: 1, Action: ActionAdd, DonorID: "abc"}},
		{"set", AdjustRequest{BloodType: "A+", Quantity: 1, Action: ActionSet}},
		{"unknown action", AdjustRequest{BloodType: "A+", Quantity: 1, Action: "multiply"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			_, err := svc.Adjust(context.Background(), testAdmin, tt.req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if len(repo.store) != 0 {
				t.Error("expected no units created")
			}
		})
	}
}

func TestService_Adjust_SetMessage(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{BloodType: "A+", Quantity: 1, Action: ActionSet})
	if err == nil || err.Error() != "set is not supported, use add or subtract" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestService_Adjust_Subtract(t *testing.T) {
	svc, _ := newTestService()
	addManual(t, svc, "A-", 5)

	entry, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{BloodType: "A-", Quantity: 2, Action: ActionSubtract})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Units != 3 {
		t.Errorf("expected 3 remaining, got %d", entry.Units)
	}
}

func TestService_Adjust_SubtractInsufficient(t *testing.T) {
	svc, _ := newTestService()
	addManual(t, svc, "A-", 2)

	_, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{BloodType: "A-", Quantity: 3, Action: ActionSubtract})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if apperr.Status(err) != 400 {
		t.Errorf("expected 400, got %d", apperr.Status(err))
	}
	n, _ := svc.units.CountAvailableByType(context.Background(), ANeg)
	if n != 2 {
		t.Errorf("expected stock unchanged at 2, got %d", n)
	}
}

func TestService_Claim_LostRace(t *testing.T) {
	svc, repo := newTestService()
	addManual(t, svc, "B-", 3)
	repo.stolen = 2

	_, err := svc.Claim(context.Background(), BNeg, 2, nil, testAdmin.UserID)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestService_Claim_SetsHospital(t *testing.T) {
	svc, _ := newTestService()
	addManual(t, svc, "O+", 2)
	hospital := uuid.New()

	units, err := svc.Claim(context.Background(), OPos, 2, &hospital, testAdmin.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, u := range units {
		if u.Status != StatusUsed || u.HospitalID == nil || *u.HospitalID != hospital {
			t.Errorf("unexpected claimed unit: %+v", u)
		}
	}
}

func TestService_Adjust_PublishesStock(t *testing.T) {
	repo := newMockUnitRepo()
	pub := &recordingPublisher{}
	svc := NewService(repo, db.NoopTxRunner{}, nil, pub, zerolog.Nop())
	addManual(t, svc, "AB-", 1)

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 live event, got %d", len(pub.events))
	}
	if pub.events[0].Topic != websocket.TopicStock || pub.events[0].ResourceID != "AB-" {
		t.Errorf("unexpected event: %+v", pub.events[0])
	}
}

// -- Units / expiry --

func TestService_ListUnits_Filter(t *testing.T) {
	svc, _ := newTestService()
	addManual(t, svc, "A+", 2)
	addManual(t, svc, "B+", 1)

	items, total, err := svc.ListUnits(context.Background(), UnitFilter{BloodType: APos}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 A+ units, got %d/%d", len(items), total)
	}

	if _, _, err := svc.ListUnits(context.Background(), UnitFilter{Status: "Lost"}, 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad status, got %v", err)
	}
}

func TestService_DonorsByBloodType(t *testing.T) {
	svc, _ := newTestService()
	addManual(t, svc, "O-", 2)

	items, err := svc.DonorsByBloodType(context.Background(), ONeg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || !items[0].Manual || items[0].DonorName != "Walk-in" {
		t.Errorf("unexpected donors: %+v", items)
	}
	if _, err := svc.DonorsByBloodType(context.Background(), "Z"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_ExpireOverdue(t *testing.T) {
	svc, _ := newTestService()
	old := time.Now().AddDate(0, 0, -50)
	_, err := svc.Adjust(context.Background(), testAdmin, AdjustRequest{
		BloodType: "A+", Quantity: 2, Action: ActionAdd,
		ManualDonorName: "x", ManualDonorPhone: "y", DonationDate: &old,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addManual(t, svc, "A+", 1)

	n, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 expired, got %d", n)
	}
	stock, _ := svc.Stock(context.Background())
	if stock[0].Units != 1 {
		t.Errorf("expected 1 A+ left, got %d", stock[0].Units)
	}
}

func TestService_RunExpirySweeper_StopsOnCancel(t *testing.T) {
	svc, _ := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunExpirySweeper(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestParseBloodType(t *testing.T) {
	for _, bt := range BloodTypes {
		if _, err := ParseBloodType(string(bt)); err != nil {
			t.Errorf("ParseBloodType(%q) error: %v", bt, err)
		}
	}
	if _, err := ParseBloodType("a+"); err == nil {
		t.Error("expected lowercase to be rejected")
	}
}
