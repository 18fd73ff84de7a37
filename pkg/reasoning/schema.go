package reasoning

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// metadataSchemaJSON is the strict contract for reasoned output. Structural
// rules the schema cannot express (null value vs confidence cap, strictly
// descending candidates) live in CardMetadata.Validate.
const metadataSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "rarity", "set", "setSymbol", "collectorNumber", "copyrightRun", "illustrator", "overallConfidence", "reasoningTrail"],
  "properties": {
    "name":            {"$ref": "#/$defs/fieldResult"},
    "rarity":          {"$ref": "#/$defs/fieldResult"},
    "set": {
      "oneOf": [
        {"$ref": "#/$defs/fieldResult"},
        {"$ref": "#/$defs/multiCandidate"}
      ]
    },
    "setSymbol":       {"$ref": "#/$defs/fieldResult"},
    "collectorNumber": {"$ref": "#/$defs/fieldResult"},
    "copyrightRun":    {"$ref": "#/$defs/fieldResult"},
    "illustrator":     {"$ref": "#/$defs/fieldResult"},
    "overallConfidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoningTrail":    {"type": "string", "minLength": 1},
    "verifiedByAI":      {"type": "boolean"}
  },
  "$defs": {
    "fieldResult": {
      "type": "object",
      "required": ["value", "confidence", "rationale"],
      "not": {"required": ["candidates"]},
      "properties": {
        "value":      {"type": ["string", "null"]},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "rationale":  {"type": "string", "minLength": 1}
      }
    },
    "multiCandidate": {
      "type": "object",
      "required": ["value", "candidates", "rationale"],
      "properties": {
        "value":     {"type": ["string", "null"]},
        "rationale": {"type": "string", "minLength": 1},
        "candidates": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["value", "confidence"],
            "properties": {
              "value":      {"type": "string"},
              "confidence": {"type": "number", "minimum": 0, "maximum": 1}
            }
          }
        }
      }
    }
  }
}`

var metadataSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://cardworks.schemas.local/reasoning/card-metadata.schema.json"
	if err := c.AddResource(url, strings.NewReader(metadataSchemaJSON)); err != nil {
		panic("reasoning: load metadata schema: " + err.Error())
	}
	s, err := c.Compile(url)
	if err != nil {
		panic("reasoning: compile metadata schema: " + err.Error())
	}
	return s
}
