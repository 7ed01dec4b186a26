package cultural

import "strings"

// contradiction pairs resilience features with the risk findings that
// contradict them and the protective findings that independently support
// them.
type contradiction struct {
	resilience []string
	risk       []string
	support    []string
}

var contradictions = []contradiction{
	{
		resilience: []string{"family", "familismo", "kin"},
		risk:       []string{"isolation", "lives alone"},
		support:    []string{"social support", "family"},
	},
	{
		resilience: []string{"community", "collective", "mutual-aid", "belonging"},
		risk:       []string{"isolation"},
		support:    []string{"community", "social support"},
	},
}

// Reconcile returns a copy of f whose resilience features do not contradict
// the risk findings. A contradicted feature is kept only when a protective
// factor independently supports it; otherwise it moves to WithheldResilience.
func Reconcile(f *Formulation, riskFactors, protectiveFactors []string) *Formulation {
	if f == nil {
		return nil
	}
	out := *f
	out.ResilienceFeatures = []string{}
	out.WithheldResilience = append([]string(nil), f.WithheldResilience...)
	for _, feature := range f.ResilienceFeatures {
		if contradicted(feature, riskFactors, protectiveFactors) {
			out.WithheldResilience = append(out.WithheldResilience, feature)
			continue
		}
		out.ResilienceFeatures = append(out.ResilienceFeatures, feature)
	}
	return &out
}

func contradicted(feature string, riskFactors, protectiveFactors []string) bool {
	feature = strings.ToLower(feature)
	for _, c := range contradictions {
		if !containsAny(feature, c.resilience) {
			continue
		}
		if !anyContainsAny(riskFactors, c.risk) {
			continue
		}
		if anyContainsAny(protectiveFactors, c.support) {
			continue
		}
		return true
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func anyContainsAny(list, subs []string) bool {
	for _, s := range list {
		if containsAny(strings.ToLower(s), subs) {
			return true
		}
	}
	return false
}
