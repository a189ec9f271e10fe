package logging

import "strings"

// moduleEnabled applies activation rules to a dotted module name. The rule with
// the longest matching prefix wins; among equal prefixes the later rule wins.
// An empty rule module matches everything.
func moduleEnabled(rules []ActivationRule, name string) bool {
	enabled := true
	best := -1
	for _, rule := range rules {
		if !matchesModule(rule.Module, name) {
			continue
		}
		if len(rule.Module) >= best {
			best = len(rule.Module)
			enabled = rule.Enabled
		}
	}
	return enabled
}

func matchesModule(prefix, name string) bool {
	if prefix == "" || prefix == name {
		return true
	}
	return strings.HasPrefix(name, prefix+".")
}

// upsertRule replaces the rule for module or appends a new one.
func upsertRule(rules []ActivationRule, module string, enabled bool) []ActivationRule {
	out := make([]ActivationRule, 0, len(rules)+1)
	for _, r := range rules {
		if r.Module != module {
			out = append(out, r)
		}
	}
	return append(out, ActivationRule{Module: module, Enabled: enabled})
}
