package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// planPackSchema validates the decoded plan pack document before any
// typed decoding. Bounds mirror the verifier's own validation: plan ids
// are positive, thresholds sit in 1..100.
const planPackSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["plans"],
  "additionalProperties": false,
  "properties": {
    "plans": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "threshold", "rules"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "threshold": {"type": "integer", "minimum": 1, "maximum": 100},
          "rules": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["metric", "min", "max"],
              "additionalProperties": false,
              "properties": {
                "metric": {"type": "string", "minLength": 1},
                "min": {"type": "integer", "minimum": 0},
                "max": {"type": "integer", "minimum": 0}
              }
            }
          }
        }
      }
    }
  }
}`

// PlanPack is the on-disk YAML document seeding the plan registry.
type PlanPack struct {
	Plans []PlanPackEntry `yaml:"plans" json:"plans"`
}

// PlanPackEntry is one plan definition inside a pack.
type PlanPackEntry struct {
	ID        uint64                 `yaml:"id" json:"id"`
	Threshold uint64                 `yaml:"threshold" json:"threshold"`
	Rules     []contracts.MetricRule `yaml:"rules" json:"rules"`
}

// LoadPlanPack reads a YAML plan pack, validates it against the pack
// schema, and returns a populated in-memory plan registry.
func LoadPlanPack(path string) (*MemPlans, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan pack: %w", err)
	}
	return ParsePlanPack(raw)
}

// ParsePlanPack validates and decodes plan pack YAML bytes.
func ParsePlanPack(raw []byte) (*MemPlans, error) {
	// Decode generically first so the schema sees the document as-is.
	// The validator expects encoding/json value types, so round-trip the
	// YAML document through JSON before validating.
	var yamlDoc any
	if err := yaml.Unmarshal(raw, &yamlDoc); err != nil {
		return nil, fmt.Errorf("plan pack yaml decode failed: %w", err)
	}
	jsonRaw, err := json.Marshal(yamlDoc)
	if err != nil {
		return nil, fmt.Errorf("plan pack json round-trip failed: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonRaw, &doc); err != nil {
		return nil, fmt.Errorf("plan pack json decode failed: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://vitaclaim.schemas.local/planpack.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(planPackSchema)); err != nil {
		return nil, fmt.Errorf("plan pack schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("plan pack schema compile failed: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, fmt.Errorf("plan pack schema validation failed: %w", err)
	}

	var pack PlanPack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("plan pack decode failed: %w", err)
	}

	plans := NewMemPlans()
	for _, entry := range pack.Plans {
		for _, rule := range entry.Rules {
			if rule.Min > rule.Max {
				return nil, fmt.Errorf("plan %d rule %q: min %d exceeds max %d", entry.ID, rule.Metric, rule.Min, rule.Max)
			}
		}
		if existing, _ := plans.Plan(entry.ID); existing != nil {
			return nil, fmt.Errorf("duplicate plan id %d", entry.ID)
		}
		plans.SetPlan(entry.ID, contracts.PlanDetails{
			Rules:     entry.Rules,
			Threshold: entry.Threshold,
		})
	}
	return plans, nil
}
