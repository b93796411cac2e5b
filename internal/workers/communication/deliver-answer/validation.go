package deliveranswer

// InputSchema declares the job variables this worker requires. Channel and
// recipient semantics (which channels are enabled, address formats) stay in
// the handler; the schema only pins the shape.
func InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"sessionId", "answerId", "answer"},
		"properties": map[string]interface{}{
			"sessionId": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"answerId": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"answer": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"channel": map[string]interface{}{
				"type": "string",
			},
			"recipient": map[string]interface{}{
				"type": "string",
			},
			"subject": map[string]interface{}{
				"type": "string",
			},
		},
	}
}
