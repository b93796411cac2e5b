package synthesizeanswer

// InputSchema declares the job variables this worker requires. The engine
// result and passages are validated by the handler when it decodes them,
// since their shape depends on the routed mode.
func InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"sessionId", "question", "mode"},
		"properties": map[string]interface{}{
			"sessionId": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"userId": map[string]interface{}{
				"type": "string",
			},
			"question": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"mode": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"confidence": map[string]interface{}{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"engine": map[string]interface{}{
				"type": "string",
			},
			"sources": map[string]interface{}{
				"type": "array",
			},
			"passages": map[string]interface{}{
				"type": "array",
			},
		},
	}
}
