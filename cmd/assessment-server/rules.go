package main

import (
	"context"
	"encoding/json"

	"github.com/ehr/assessment/internal/domain/governance"
)

// defaultRules is the rule set installed by "rules seed": symptom text is
// redacted from every audit entry and only known data classifications may
// be assessed.
func defaultRules() []*governance.Rule {
	return []*governance.Rule{
		{
			Name:        "redact-symptom-text",
			Description: "Redact free-text symptom descriptions from audit entries",
			Type:        governance.RuleTypeAudit,
			Config:      json.RawMessage(`{"redact_fields": ["symptom_text"], "impact": "low"}`),
			Active:      true,
		},
		{
			Name:        "known-data-classification",
			Description: "Only PHI, de-identified or synthetic data may be assessed",
			Type:        governance.RuleTypeCompliance,
			Config:      json.RawMessage(`{"allowed_classifications": ["phi", "deidentified", "synthetic"], "block_on_failure": true, "impact": "critical"}`),
			Active:      true,
		},
	}
}

// seedRules creates every default rule whose name is not taken yet and
// returns how many were created.
func seedRules(ctx context.Context, svc *governance.Service) (int, error) {
	existing, _, err := svc.ListRules(ctx, 1000, 0)
	if err != nil {
		return 0, err
	}
	names := make(map[string]bool, len(existing))
	for _, r := range existing {
		names[r.Name] = true
	}

	created := 0
	for _, r := range defaultRules() {
		if names[r.Name] {
			continue
		}
		if err := svc.CreateRule(ctx, r); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
