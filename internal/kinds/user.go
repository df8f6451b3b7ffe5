package kinds

import (
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
)

// User wires operator accounts. Each user owns its own record.
var User = lifecycle.Kind[domain.User, *domain.User]{
	Table: lifecycle.Table{
		Kind:     domain.KindUser,
		Initial:  domain.StatusActive,
		Statuses: []domain.Status{domain.StatusActive, domain.StatusInactive},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Activate:   {From: from(domain.StatusInactive), To: domain.StatusActive},
			Deactivate: {From: from(domain.StatusActive), To: domain.StatusInactive},
		},
		Edit:   auth.Owner,
		Act:    auth.Admin,
		Delete: auth.Admin,
	},
}
