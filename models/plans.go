package models

import (
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type PlanType string

const (
	PlanTrial     PlanType = "trial"
	PlanMonthly   PlanType = "monthly"
	PlanQuarterly PlanType = "quarterly"
	PlanAnnual    PlanType = "annual"
	PlanLifetime  PlanType = "lifetime"
)

const DefaultTrialDays = 7

type PlanFeatures struct {
	MaxUsers       int
	MaxProducts    int
	StorageLimitMB int
	EnablePayments bool
	SupportLevel   string
}

type Plan struct {
	ID          string
	Name        string
	Type        PlanType
	Description string
	Price       float64
	Currency    string
	Features    PlanFeatures
}

// The catalog is static: plan changes ship with a release, they are not
// edited at runtime.
var planCatalog = map[PlanType]Plan{
	PlanTrial: {
		ID:          "plan_trial_7",
		Name:        "Trial 7 Days",
		Type:        PlanTrial,
		Description: "Free 7 day trial",
		Price:       0,
		Currency:    "EUR",
		Features:    PlanFeatures{MaxUsers: 5, MaxProducts: 100, StorageLimitMB: 1024, EnablePayments: false, SupportLevel: "basic"},
	},
	PlanMonthly: {
		ID:          "plan_monthly",
		Name:        "Professional Monthly",
		Type:        PlanMonthly,
		Description: "Professional monthly plan",
		Price:       49.99,
		Currency:    "EUR",
		Features:    PlanFeatures{MaxUsers: 25, MaxProducts: 5000, StorageLimitMB: 10240, EnablePayments: true, SupportLevel: "standard"},
	},
	PlanQuarterly: {
		ID:          "plan_quarterly",
		Name:        "Enterprise Quarterly",
		Type:        PlanQuarterly,
		Description: "Enterprise quarterly plan",
		Price:       129.99,
		Currency:    "EUR",
		Features:    PlanFeatures{MaxUsers: 50, MaxProducts: 10000, StorageLimitMB: 51200, EnablePayments: true, SupportLevel: "premium"},
	},
	PlanAnnual: {
		ID:          "plan_annual",
		Name:        "Enterprise Annual",
		Type:        PlanAnnual,
		Description: "Enterprise annual plan",
		Price:       449.99,
		Currency:    "EUR",
		Features:    PlanFeatures{MaxUsers: 100, MaxProducts: 50000, StorageLimitMB: 102400, EnablePayments: true, SupportLevel: "premium"},
	},
	PlanLifetime: {
		ID:          "plan_lifetime",
		Name:        "Lifetime License",
		Type:        PlanLifetime,
		Description: "Permanent lifetime license",
		Price:       999.99,
		Currency:    "EUR",
		Features:    PlanFeatures{MaxUsers: 500, MaxProducts: 999999, StorageLimitMB: 1048576, EnablePayments: true, SupportLevel: "premium"},
	},
}

func PlanFor(planType PlanType) utils.Result[Plan] {
	plan, found := planCatalog[planType]
	if !found {
		return utils.FailedResult[Plan](utils.ValidationError("unknown plan type %q", planType))
	}

	return utils.SuccessResult(plan)
}

// BillingWindow computes the billing period starting at start. The end is
// nil only for lifetime plans. Month based cycles use calendar arithmetic,
// not fixed day counts.
func BillingWindow(planType PlanType, start time.Time, trialDays int) *time.Time {
	var end time.Time

	switch planType {
	case PlanTrial:
		if trialDays <= 0 {
			trialDays = DefaultTrialDays
		}
		end = start.AddDate(0, 0, trialDays)
	case PlanMonthly:
		end = start.AddDate(0, 1, 0)
	case PlanQuarterly:
		end = start.AddDate(0, 3, 0)
	case PlanAnnual:
		end = start.AddDate(1, 0, 0)
	default:
		return nil
	}

	return &end
}
