// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Dataset and unified table errors
const (
	ErrCodeDatasetFetchFailed  ErrorCode = "DATASET_FETCH_FAILED"
	ErrCodeDatasetEmpty        ErrorCode = "DATASET_EMPTY"
	ErrCodeTableBuildFailed    ErrorCode = "TABLE_BUILD_FAILED"
	ErrCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeUnifiedTableMissing ErrorCode = "UNIFIED_TABLE_MISSING"

	ErrCodeInputValidationFailed ErrorCode = "INPUT_VALIDATION_FAILED"

	ErrCodeInvalidQuestion ErrorCode = "INVALID_QUESTION"
	ErrCodeRoutingFailed   ErrorCode = "ROUTING_FAILED"

	ErrCodeCalcExecutionFailed   ErrorCode = "CALC_EXECUTION_FAILED"
	ErrCodeLookupExecutionFailed ErrorCode = "LOOKUP_EXECUTION_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"
	ErrCodeAuditWriteFailed         ErrorCode = "AUDIT_WRITE_FAILED"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed             ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout                 ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeIndexNotFound                 ErrorCode = "INDEX_NOT_FOUND"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeSynthesisFailed  ErrorCode = "SYNTHESIS_FAILED"
	ErrCodeSynthesisTimeout ErrorCode = "SYNTHESIS_TIMEOUT"

	ErrCodeDeliverySendFailed     ErrorCode = "DELIVERY_SEND_FAILED"
	ErrCodeInvalidDeliveryChannel ErrorCode = "INVALID_DELIVERY_CHANNEL"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewDatasetFetchFailedError creates a retryable dataset fetch error.
func NewDatasetFetchFailedError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatasetFetchFailed,
		Message:   "Dataset fetch from storage failed",
		Details:   fmt.Sprintf("source: %s, error: %s", source, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatasetEmptyError creates a non-retryable empty dataset error.
func NewDatasetEmptyError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatasetEmpty,
		Message:   "No datasets available for session",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTableBuildFailedError creates a non-retryable table construction error.
func NewTableBuildFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTableBuildFailed,
		Message:   "Unified table construction failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable session lookup error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Analysis session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnifiedTableMissingError creates a non-retryable missing table error.
func NewUnifiedTableMissingError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnifiedTableMissing,
		Message:   "Session has no unified table yet",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputValidationError reports job variables rejected by a worker's
// declared input schema.
func NewInputValidationError(taskType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputValidationFailed,
		Message:   fmt.Sprintf("Job variables rejected for '%s'", taskType),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidQuestionError creates a non-retryable question validation error.
func NewInvalidQuestionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQuestion,
		Message:   "Question failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRoutingFailedError creates a non-retryable routing error.
func NewRoutingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRoutingFailed,
		Message:   "Question routing failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCalcExecutionFailedError creates a non-retryable calculation error.
func NewCalcExecutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCalcExecutionFailed,
		Message:   "Calculation engine execution failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLookupExecutionFailedError creates a non-retryable lookup error.
func NewLookupExecutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLookupExecutionFailed,
		Message:   "Lookup engine execution failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(queryType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Database query timeout",
		Details:   fmt.Sprintf("queryType: %s", queryType),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditWriteFailedError creates a retryable audit trail write error.
func NewAuditWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditWriteFailed,
		Message:   "Answer audit record insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeElasticsearchConnectionFailed,
		Message:   "Elasticsearch connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Elasticsearch query error",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeoutError creates a retryable search timeout error.
func NewSearchTimeoutError(index string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchTimeout,
		Message:   "Elasticsearch query timeout",
		Details:   fmt.Sprintf("index: %s", index),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotFoundError creates a non-retryable index not found error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   "Elasticsearch index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Result cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSynthesisFailedError creates a retryable synthesis API error.
func NewSynthesisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSynthesisFailed,
		Message:   "Answer synthesis API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSynthesisTimeoutError creates a retryable synthesis timeout error.
func NewSynthesisTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSynthesisTimeout,
		Message:   "Answer synthesis timeout",
		Details:   "synthesis call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliverySendFailedError creates a retryable delivery error.
func NewDeliverySendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliverySendFailed,
		Message:   "Answer delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidDeliveryChannelError creates a non-retryable channel validation error.
func NewInvalidDeliveryChannelError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidDeliveryChannel,
		Message:   "Unsupported delivery channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      "BUSINESS_RULE_VIOLATION",
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes (same as internal).
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeDatasetFetchFailed:            "DATASET_FETCH_FAILED",
	ErrCodeDatasetEmpty:                  "DATASET_EMPTY",
	ErrCodeTableBuildFailed:              "TABLE_BUILD_FAILED",
	ErrCodeSessionNotFound:               "SESSION_NOT_FOUND",
	ErrCodeUnifiedTableMissing:           "UNIFIED_TABLE_MISSING",
	ErrCodeInvalidQuestion:               "INVALID_QUESTION",
	ErrCodeRoutingFailed:                 "ROUTING_FAILED",
	ErrCodeCalcExecutionFailed:           "CALC_EXECUTION_FAILED",
	ErrCodeLookupExecutionFailed:         "LOOKUP_EXECUTION_FAILED",
	ErrCodeDatabaseConnectionFailed:      "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryExecutionFailed:          "QUERY_EXECUTION_FAILED",
	ErrCodeQueryTimeout:                  "QUERY_TIMEOUT",
	ErrCodeAuditWriteFailed:              "AUDIT_WRITE_FAILED",
	ErrCodeElasticsearchConnectionFailed: "ELASTICSEARCH_CONNECTION_FAILED",
	ErrCodeSearchQueryFailed:             "SEARCH_QUERY_FAILED",
	ErrCodeSearchTimeout:                 "SEARCH_TIMEOUT",
	ErrCodeIndexNotFound:                 "INDEX_NOT_FOUND",
	ErrCodeCacheUnavailable:              "CACHE_UNAVAILABLE",
	ErrCodeSynthesisFailed:               "SYNTHESIS_FAILED",
	ErrCodeSynthesisTimeout:              "SYNTHESIS_TIMEOUT",
	ErrCodeDeliverySendFailed:            "DELIVERY_SEND_FAILED",
	ErrCodeInvalidDeliveryChannel:        "INVALID_DELIVERY_CHANNEL",
}

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatasetFetchFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeAuditWriteFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeCacheUnavailable,
		ErrCodeSynthesisFailed,
		ErrCodeDeliverySendFailed:
		return 3 // Retryable technical errors

	case ErrCodeQueryTimeout,
		ErrCodeSearchTimeout:
		return 2 // Partial retry for timeouts

	case ErrCodeSynthesisTimeout:
		return 1 // Matches the BPMN boundary event

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code) // Fallback
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// CodeOf extracts the structured code from err. Plain errors report
// INTERNAL_ERROR, matching how HandleJobError normalizes them.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATASET") || strings.Contains(codeStr, "TABLE") || strings.Contains(codeStr, "SESSION"):
		return "DATA"
	case strings.Contains(codeStr, "QUESTION") || strings.Contains(codeStr, "ROUTING"):
		return "ROUTING"
	case strings.Contains(codeStr, "CALC") || strings.Contains(codeStr, "LOOKUP"):
		return "ANALYSIS"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "AUDIT"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "SYNTHESIS"):
		return "SYNTHESIS"
	case strings.Contains(codeStr, "DELIVERY") || strings.Contains(codeStr, "CHANNEL"):
		return "DELIVERY"
	default:
		return "OTHER"
	}
}
