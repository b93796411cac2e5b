package retrievepassages

// InputSchema declares the job variables this worker requires.
func InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"question"},
		"properties": map[string]interface{}{
			"sessionId": map[string]interface{}{
				"type": "string",
			},
			"question": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"topK": map[string]interface{}{
				"type":    "integer",
				"minimum": 1,
			},
		},
	}
}
