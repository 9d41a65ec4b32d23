package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/domain/bankrequest"
	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/domain/user"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/reporting"
)

// exportPage is the page size used while walking listings for an export.
const exportPage = 500

type Accounts interface {
	List(ctx context.Context, limit, offset int) ([]*user.User, int, error)
	CountByRole(ctx context.Context) (map[auth.Role]int, error)
	Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error
}

type Inventory interface {
	Stock(ctx context.Context) ([]inventory.StockEntry, error)
	ListUnits(ctx context.Context, f inventory.UnitFilter, limit, offset int) ([]*inventory.BloodUnit, int, error)
}

type BankRequests interface {
	List(ctx context.Context, actor auth.Identity, status string, limit, offset int) ([]*bankrequest.Request, int, error)
	CountPending(ctx context.Context) (int, error)
}

// Counter is satisfied by the donation and drive services.
type Counter func(ctx context.Context) (int, error)

type Service struct {
	accounts       Accounts
	stock          Inventory
	bank           BankRequests
	pendingDonors  Counter
	upcomingDrives Counter
	logger         zerolog.Logger
	now            func() time.Time
}

func NewService(accounts Accounts, stock Inventory, bank BankRequests, pendingDonations, upcomingDrives Counter, logger zerolog.Logger) *Service {
	return &Service{
		accounts:       accounts,
		stock:          stock,
		bank:           bank,
		pendingDonors:  pendingDonations,
		upcomingDrives: upcomingDrives,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	roles, err := s.accounts.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Users: make(map[auth.Role]int, len(auth.AllRoles))}
	for _, r := range auth.AllRoles {
		st.Users[r] = roles[r]
		st.TotalUsers += roles[r]
	}

	if st.Stock, err = s.stock.Stock(ctx); err != nil {
		return nil, err
	}
	for _, e := range st.Stock {
		st.TotalUnits += e.Units
	}

	if st.PendingBankRequests, err = s.bank.CountPending(ctx); err != nil {
		return nil, err
	}
	if st.PendingDonationRequests, err = s.pendingDonors(ctx); err != nil {
		return nil, err
	}
	if st.UpcomingDrives, err = s.upcomingDrives(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) Users(ctx context.Context, limit, offset int) ([]*user.User, int, error) {
	return s.accounts.List(ctx, limit, offset)
}

func (s *Service) DeleteUser(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	return s.accounts.Delete(ctx, actor, id)
}

// collect walks a paginated listing until total rows are read.
func collect[T any](ctx context.Context, list func(ctx context.Context, limit, offset int) ([]T, int, error)) ([]T, error) {
	var out []T
	for {
		page, total, err := list(ctx, exportPage, len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

// ExportInventory renders the stock summary, every blood unit and every
// bank request into an xlsx workbook.
func (s *Service) ExportInventory(ctx context.Context, actor auth.Identity) ([]byte, error) {
	stock, err := s.stock.Stock(ctx)
	if err != nil {
		return nil, err
	}
	units, err := collect(ctx, func(ctx context.Context, limit, offset int) ([]*inventory.BloodUnit, int, error) {
		return s.stock.ListUnits(ctx, inventory.UnitFilter{}, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("export units: %w", err)
	}
	requests, err := collect(ctx, func(ctx context.Context, limit, offset int) ([]*bankrequest.Request, int, error) {
		return s.bank.List(ctx, actor, "", limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("export requests: %w", err)
	}

	stockSheet := reporting.Sheet{
		Name:    "Stock",
		Headers: []string{"Blood Type", "Available Units"},
		Widths:  []float64{14, 18},
	}
	for _, e := range stock {
		stockSheet.AddRow(string(e.BloodType), e.Units)
	}

	unitSheet := reporting.Sheet{
		Name:    "Units",
		Headers: []string{"ID", "Blood Type", "Status", "Donor", "Donation Date", "Expiry Date", "Hospital"},
		Widths:  []float64{38, 12, 12, 38, 18, 18, 38},
	}
	for _, u := range units {
		donor := ""
		switch {
		case u.DonorID != nil:
			donor = u.DonorID.String()
		case u.ManualDonorName != nil:
			donor = *u.ManualDonorName
		}
		hospital := ""
		if u.HospitalID != nil {
			hospital = u.HospitalID.String()
		}
		unitSheet.AddRow(u.ID.String(), string(u.BloodType), string(u.Status), donor, u.DonationDate, u.ExpiryDate, hospital)
	}

	reqSheet := reporting.Sheet{
		Name:    "Requests",
		Headers: []string{"ID", "Hospital", "Blood Type", "Units", "Urgency", "Status", "Requested", "Resolved"},
		Widths:  []float64{38, 28, 12, 8, 12, 12, 18, 18},
	}
	for _, r := range requests {
		reqSheet.AddRow(r.ID.String(), r.HospitalName, string(r.BloodType), r.UnitsNeeded,
			string(r.Urgency), string(r.Status), r.RequestDate, r.ResolvedDate)
	}

	data, err := reporting.Workbook(stockSheet, unitSheet, reqSheet)
	if err != nil {
		return nil, fmt.Errorf("render inventory workbook: %w", err)
	}
	s.logger.Info().Int("units", len(units)).Int("requests", len(requests)).
		Str("by", actor.UserID.String()).Msg("inventory exported")
	return data, nil
}

// ExportFilename is the attachment name for an export taken now.
func (s *Service) ExportFilename() string {
	return "inventory-" + s.now().UTC().Format("20060102") + ".xlsx"
}
