// Package classify defines the error taxonomy shared by the worker, the
// submission executor, and the success judge, and builds the classify_detail
// record persisted with every submissions row.
package classify

// Code identifies a terminal outcome of processing one company.
type Code string

const (
	// Preconditions.
	CodeNoFormURL          Code = "NO_FORM_URL"
	CodeNotFound           Code = "NOT_FOUND"
	CodeSkippedByName      Code = "SKIPPED_BY_NAME_POLICY"
	CodeSkippedAlreadySent Code = "SKIPPED_ALREADY_SENT_TODAY"
	CodeSkippedWrongClient Code = "SKIPPED_WRONG_CLIENT"

	// Discovery.
	CodeAnalysisFailed Code = "ANALYSIS_FAILED"
	CodeNoFormFound    Code = "NO_FORM_FOUND"
	CodeNoFieldsFilled Code = "NO_FIELDS_FILLED"
	CodeMapping        Code = "MAPPING"
	CodeNoMessageArea  Code = "NO_MESSAGE_AREA"

	// Submission.
	CodeBotDetected         Code = "BOT_DETECTED"
	CodeProhibitionDetected Code = "PROHIBITION_DETECTED"
	CodeValidationFormat    Code = "VALIDATION_FORMAT"
	CodeSystem              Code = "SYSTEM"
	CodeWorkerError         Code = "WORKER_ERROR"
	CodeRuleBasedError      Code = "RULE_BASED_ERROR"
	CodeSubmissionError     Code = "SUBMISSION_ERROR"

	// Transport / system.
	CodeAccess            Code = "ACCESS"
	CodeTimeout           Code = "TIMEOUT"
	CodeRetryExceeded     Code = "RETRY_EXCEEDED"
	CodeShutdownRequested Code = "SHUTDOWN_REQUESTED"

	// CodeSuccess is the zero outcome; it never reaches the error_type column.
	CodeSuccess Code = ""
)

// Category groups codes for reporting and cooldown policy.
type Category string

const (
	CategoryBusiness      Category = "BUSINESS"
	CategoryFormStructure Category = "FORM_STRUCTURE"
	CategoryBotProtection Category = "BOT_PROTECTION"
	CategoryValidation    Category = "VALIDATION"
	CategoryTransport     Category = "TRANSPORT"
	CategorySkip          Category = "SKIP"
	CategorySystem        Category = "SYSTEM"
)

// policy is the per-code classification table. Codes absent from the table
// fall back to SYSTEM / retryable.
type policyEntry struct {
	category        Category
	retryable       bool
	cooldownSeconds int
}

var policyTable = map[Code]policyEntry{
	CodeNoFormURL:          {CategorySkip, false, 0},
	CodeNotFound:           {CategorySkip, false, 0},
	CodeSkippedByName:      {CategorySkip, false, 0},
	CodeSkippedAlreadySent: {CategorySkip, false, 0},
	CodeSkippedWrongClient: {CategorySkip, false, 0},

	CodeAnalysisFailed: {CategoryFormStructure, true, 86400},
	CodeNoFormFound:    {CategoryFormStructure, false, 0},
	CodeNoFieldsFilled: {CategoryFormStructure, true, 86400},
	CodeMapping:        {CategoryFormStructure, true, 86400},
	CodeNoMessageArea:  {CategoryFormStructure, false, 0},

	CodeBotDetected:         {CategoryBotProtection, false, 0},
	CodeProhibitionDetected: {CategoryBusiness, false, 0},
	CodeValidationFormat:    {CategoryValidation, true, 86400},
	CodeSystem:              {CategorySystem, true, 3600},
	CodeWorkerError:         {CategorySystem, true, 3600},
	CodeRuleBasedError:      {CategorySystem, true, 86400},
	CodeSubmissionError:     {CategoryValidation, true, 86400},

	CodeAccess:            {CategoryTransport, true, 3600},
	CodeTimeout:           {CategoryTransport, true, 3600},
	CodeRetryExceeded:     {CategoryTransport, true, 86400},
	CodeShutdownRequested: {CategorySystem, true, 0},
}

// CategoryOf returns the reporting category for a code.
func CategoryOf(code Code) Category {
	if e, ok := policyTable[code]; ok {
		return e.category
	}
	return CategorySystem
}

// Retryable reports whether a later run may retry the company.
func Retryable(code Code) bool {
	if e, ok := policyTable[code]; ok {
		return e.retryable
	}
	return true
}

// CooldownSeconds returns the minimum wait before a retry makes sense.
func CooldownSeconds(code Code) int {
	if e, ok := policyTable[code]; ok {
		return e.cooldownSeconds
	}
	return 3600
}
