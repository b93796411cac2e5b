package routequestion

// InputSchema declares the job variables this worker requires.
func InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"sessionId", "question"},
		"properties": map[string]interface{}{
			"sessionId": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"question": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
		},
	}
}
