package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// Operation names one guarded action. Routes declare the operation they
// perform and the Policy decides which roles may perform it.
type Operation string

const (
	OpDonorList          Operation = "donor.list"
	OpDonorGet           Operation = "donor.get"
	OpDonorListAll       Operation = "donor.list_all"
	OpProfileUpdate      Operation = "profile.update"
	OpAvailabilityUpdate Operation = "availability.update"

	OpStockView   Operation = "stock.view"
	OpStockAdjust Operation = "stock.adjust"
	OpUnitList    Operation = "unit.list"
	OpStockDonors Operation = "stock.donors"

	OpBankRequestCreate   Operation = "bankrequest.create"
	OpBankRequestList     Operation = "bankrequest.list"
	OpBankRequestResolve  Operation = "bankrequest.resolve"
	OpBankRequestComplete Operation = "bankrequest.complete"
	OpBankRequestDelete   Operation = "bankrequest.delete"

	OpDonationCreate   Operation = "donation.create"
	OpDonationListMine Operation = "donation.list_mine"
	OpDonationPending  Operation = "donation.pending"
	OpDonationRespond  Operation = "donation.respond"
	OpDonationComplete Operation = "donation.complete"
	OpDonationDelete   Operation = "donation.delete"
	OpEmergency        Operation = "donation.emergency"
	OpDonationAdmin    Operation = "donation.admin"

	OpDriveList     Operation = "drive.list"
	OpDriveCreate   Operation = "drive.create"
	OpDriveMine     Operation = "drive.mine"
	OpDriveRegister Operation = "drive.register"
	OpDriveManage   Operation = "drive.manage"

	OpNotificationAccess Operation = "notification.access"
	OpSupportCreate      Operation = "support.create"
	OpSupportAdmin       Operation = "support.admin"
	OpAdminDashboard     Operation = "admin.dashboard"
	OpLiveUpdates        Operation = "live.subscribe"
)

var (
	everyone      = []Role{RoleDonor, RoleRecipient, RoleHospital, RoleAdmin}
	adminOnly     = []Role{RoleAdmin}
	requesters    = []Role{RoleHospital, RoleRecipient, RoleAdmin}
	organizers    = []Role{RoleAdmin, RoleHospital}
	directRequest = []Role{RoleRecipient, RoleHospital}
)

func defaultRules() map[Operation][]Role {
	return map[Operation][]Role{
		OpDonorList:          everyone,
		OpDonorGet:           everyone,
		OpDonorListAll:       {RoleHospital},
		OpProfileUpdate:      everyone,
		OpAvailabilityUpdate: {RoleDonor},

		OpStockView:   everyone,
		OpStockAdjust: adminOnly,
		OpUnitList:    adminOnly,
		OpStockDonors: adminOnly,

		OpBankRequestCreate:   requesters,
		OpBankRequestList:     requesters,
		OpBankRequestResolve:  adminOnly,
		OpBankRequestComplete: requesters,
		OpBankRequestDelete:   requesters,

		OpDonationCreate:   directRequest,
		OpDonationListMine: everyone,
		OpDonationPending:  {RoleDonor},
		OpDonationRespond:  {RoleDonor},
		OpDonationComplete: everyone,
		OpDonationDelete:   everyone,
		OpEmergency:        {RoleHospital},
		OpDonationAdmin:    adminOnly,

		OpDriveList:     everyone,
		OpDriveCreate:   organizers,
		OpDriveMine:     organizers,
		OpDriveRegister: {RoleDonor},
		OpDriveManage:   organizers,

		OpNotificationAccess: everyone,
		OpSupportCreate:      everyone,
		OpSupportAdmin:       adminOnly,
		OpAdminDashboard:     adminOnly,
		OpLiveUpdates:        everyone,
	}
}

// Policy is the (operation, role) -> allowed table.
type Policy struct {
	mu    sync.RWMutex
	rules map[Operation]map[Role]bool
}

// DefaultPolicy returns the built-in table.
func DefaultPolicy() *Policy {
	p := &Policy{rules: make(map[Operation]map[Role]bool)}
	for op, roles := range defaultRules() {
		p.Set(op, roles...)
	}
	return p
}

// Set replaces the roles allowed to perform op.
func (p *Policy) Set(op Operation, roles ...Role) {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	p.mu.Lock()
	p.rules[op] = allowed
	p.mu.Unlock()
}

// Allows reports whether role may perform op. Unknown operations are denied.
func (p *Policy) Allows(op Operation, role Role) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rules[op][role]
}

// Roles returns the roles allowed to perform op, sorted.
func (p *Policy) Roles(op Operation) []Role {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Role, 0, len(p.rules[op]))
	for r, ok := range p.rules[op] {
		if ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decision is the result of evaluating a request against the table.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Evaluate checks the caller in ctx against op.
func (p *Policy) Evaluate(ctx context.Context, op Operation) *Decision {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return &Decision{Allowed: false, Reason: "not authenticated"}
	}
	if !p.Allows(op, id.Role) {
		return &Decision{Allowed: false, Reason: fmt.Sprintf("role %s is not authorized to access this route", id.Role)}
	}
	return &Decision{Allowed: true, Reason: "policy match"}
}

// policyFile is the YAML override format:
//
//	stock.adjust: [admin, hospital]
//	drive.create: [admin]
type policyFile map[string][]string

// LoadPolicyFile applies overrides from a YAML file on top of p.
func (p *Policy) LoadPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	return p.LoadPolicyYAML(data)
}

// LoadPolicyYAML applies overrides from YAML bytes. Every operation and role
// must be known; nothing is applied when any entry is invalid.
func (p *Policy) LoadPolicyYAML(data []byte) error {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}

	known := defaultRules()
	parsed := make(map[Operation][]Role, len(file))
	for opName, roleNames := range file {
		op := Operation(opName)
		if _, ok := known[op]; !ok {
			return fmt.Errorf("unknown operation %q", opName)
		}
		roles := make([]Role, 0, len(roleNames))
		for _, rn := range roleNames {
			r, err := ParseRole(rn)
			if err != nil {
				return fmt.Errorf("operation %q: %w", opName, err)
			}
			roles = append(roles, r)
		}
		parsed[op] = roles
	}

	for op, roles := range parsed {
		p.Set(op, roles...)
	}
	return nil
}

// Authorize returns middleware that checks the caller against op once per
// request. Ownership rules that need row data are checked by the services.
func Authorize(p *Policy, op Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := p.Evaluate(c.Request().Context(), op)
			if !decision.Allowed {
				if decision.Reason == "not authenticated" {
					return echo.NewHTTPError(http.StatusUnauthorized, "not authorized")
				}
				return echo.NewHTTPError(http.StatusForbidden, decision.Reason)
			}
			return next(c)
		}
	}
}
