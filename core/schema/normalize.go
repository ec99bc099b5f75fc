package schema

// Normalize returns the validation rule set of attrs.
// Storage-only keys are dropped and enum is renamed to in. When both enum and
// in are declared, in wins. The input is not modified and normalizing an
// already normalized rule set returns an equal rule set.
func Normalize(attrs Attributes) Attributes {
	out := make(Attributes, len(attrs))
	for field, attr := range attrs {
		rules := make(Attribute, len(attr))
		for name, rule := range attr {
			if storageKeys[name] {
				continue
			}
			if name == KeyEnum {
				if _, explicit := attr[KeyIn]; explicit {
					continue
				}
				name = KeyIn
			}
			rules[name] = rule
		}
		out[field] = rules
	}
	return out
}
