package relay

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const schemaInitiatePayment = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["amount", "order_reference", "email"],
  "properties": {
    "amount": { "type": "integer", "minimum": 1 },
    "order_reference": { "type": "string", "minLength": 1, "maxLength": 255 },
    "email": { "type": "string", "format": "email" }
  }
}`

var initiatePaymentLoader = gojsonschema.NewStringLoader(schemaInitiatePayment)

// validateJSONSchema returns every schema violation joined into one message.
func validateJSONSchema(schemaLoader gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
