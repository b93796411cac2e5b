package buildunifiedtable

// InputSchema declares the job variables this worker requires. It is the
// schema published for this activity in the registry.
func InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"sessionId", "datasets"},
		"properties": map[string]interface{}{
			"sessionId": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"userId": map[string]interface{}{
				"type": "string",
			},
			"datasets": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
			},
		},
	}
}
