package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal parses YAML number scalars through shopspring/decimal so values such
// as fee rates keep their exact written form instead of rounding through
// float64. It also remembers whether the file actually provided a value, which
// lets the defaulting pass tell an explicit zero apart from an absent field.
type Decimal struct {
	decimal.Decimal
	set bool
}

// IsSet reports whether the value was present in the config file.
func (d Decimal) IsSet() bool { return d.set }

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a number scalar, got a yaml %v node", node.Kind)
	}
	if node.Tag == "!!null" || node.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("cannot parse %q as a decimal number: %w", node.Value, err)
	}
	d.Decimal = parsed
	d.set = true
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
