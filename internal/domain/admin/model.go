package admin

import (
	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/platform/auth"
)

// Stats is the admin dashboard summary.
type Stats struct {
	Users                   map[auth.Role]int      `json:"users"`
	TotalUsers              int                    `json:"totalUsers"`
	TotalUnits              int                    `json:"totalUnits"`
	Stock                   []inventory.StockEntry `json:"stock"`
	PendingBankRequests     int                    `json:"pendingBankRequests"`
	PendingDonationRequests int                    `json:"pendingDonationRequests"`
	UpcomingDrives          int                    `json:"upcomingDrives"`
}
