package models

// TestScope says whether a validation test runs once per line or once per invoice
type TestScope string

const (
	ScopeLine    TestScope = "line"
	ScopeInvoice TestScope = "invoice"
)

// ValidationTest is one arithmetic consistency rule. Each entry of Required is
// a group of alternative fields; a group is satisfied when any one of them is
// present.
type ValidationTest struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Tolerance   float64    `yaml:"tolerance" json:"tolerance"`
	Scope       TestScope  `yaml:"scope" json:"scope"`
	Required    [][]string `yaml:"required" json:"required"`
}

// CheckResult is one evaluation of a test against a single line or the invoice
type CheckResult struct {
	Subject   string  `json:"subject"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Passed    bool    `json:"passed"`
	DataError bool    `json:"data_error,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// ValidationResult is the outcome of one test. Expected and Actual mirror the
// first failing check, or the first check when all pass.
type ValidationResult struct {
	TestID       string        `json:"test_id"`
	TestName     string        `json:"test_name"`
	Description  string        `json:"description"`
	Expected     float64       `json:"expected"`
	Actual       float64       `json:"actual"`
	Tolerance    float64       `json:"tolerance"`
	Passed       bool          `json:"passed"`
	DataError    bool          `json:"data_error,omitempty"`
	Message      string        `json:"message,omitempty"`
	Checks       []CheckResult `json:"checks"`
	SkippedLines int           `json:"skipped_lines,omitempty"`
}

// SkippedTest records a test that could not run and the field groups it lacked
type SkippedTest struct {
	TestID        string   `json:"test_id"`
	TestName      string   `json:"test_name"`
	MissingFields []string `json:"missing_fields"`
}

// ValidationReport aggregates all results for one invoice. OverallPassed is
// vacuously true when TestsRun is zero; callers tell "clean" from "nothing to
// check" by TestsRun.
type ValidationReport struct {
	InvoiceID     string             `json:"invoice_id"`
	InvoiceNumber string             `json:"invoice_number"`
	TestsRun      int                `json:"tests_run"`
	TestsPassed   int                `json:"tests_passed"`
	TestsFailed   int                `json:"tests_failed"`
	DataErrors    int                `json:"data_errors"`
	OverallPassed bool               `json:"overall_passed"`
	Results       []ValidationResult `json:"results"`
	NotApplicable []SkippedTest      `json:"not_applicable"`
}

// BatchValidationResult is the outcome of validating every stored invoice
type BatchValidationResult struct {
	TotalInvoices    int                 `json:"total_invoices"`
	PassedValidation int                 `json:"passed_validation"`
	FailedValidation int                 `json:"failed_validation"`
	Errored          int                 `json:"errored"`
	SuccessRate      float64             `json:"success_rate"`
	Reports          []*ValidationReport `json:"detailed_results"`
	Errors           map[string]string   `json:"errors,omitempty"`
}

// ValidationSummary counts stored invoices by flag state
type ValidationSummary struct {
	TotalInvoices     int `json:"total_invoices"`
	Validated         int `json:"validated"`
	FailedValidation  int `json:"failed_validation"`
	NotValidated      int `json:"not_validated"`
	FlaggedDuplicates int `json:"flagged_duplicates"`
}

// MatchType tags the scenario that produced a DuplicateMatch
type MatchType string

const (
	MatchExactInvoice             MatchType = "EXACT_INVOICE_MATCH"
	MatchSupplierAmountDate       MatchType = "SUPPLIER_AMOUNT_DATE_MATCH"
	MatchSupplierAmountSimilarity MatchType = "SUPPLIER_AMOUNT_SIMILARITY"
	MatchProductLineSimilarity    MatchType = "PRODUCT_LINE_SIMILARITY"
	MatchHSNPattern               MatchType = "HSN_PATTERN_MATCH"
	MatchRatePattern              MatchType = "RATE_PATTERN_MATCH"
)

// Action is the recommendation handed to the approval workflow
type Action string

const (
	ActionHighConfidenceDuplicate Action = "HIGH_CONFIDENCE_DUPLICATE"
	ActionLikelyDuplicate         Action = "LIKELY_DUPLICATE_REVIEW_REQUIRED"
	ActionPossibleDuplicate       Action = "POSSIBLE_DUPLICATE_INVESTIGATE"
	ActionApproveAsUnique         Action = "APPROVE_AS_UNIQUE"
	ActionVerifyInvoiceExists     Action = "VERIFY_INVOICE_EXISTS"
	ActionIndeterminate           Action = "DUPLICATION_INDETERMINATE"
)

// AnalysisStatus distinguishes a finished analysis from one that could not
// reach a verdict
type AnalysisStatus string

const (
	StatusComplete      AnalysisStatus = "COMPLETE"
	StatusIndeterminate AnalysisStatus = "INDETERMINATE"
	StatusNotFound      AnalysisStatus = "NOT_FOUND"
)

// DuplicateMatch is the evidence one scenario produced for one candidate
type DuplicateMatch struct {
	MatchType              MatchType         `json:"match_type"`
	OriginalInvoiceID      string            `json:"original_invoice_id"`
	OriginalInvoiceNumber  string            `json:"original_invoice_number"`
	DuplicateInvoiceID     string            `json:"duplicate_invoice_id"`
	DuplicateInvoiceNumber string            `json:"duplicate_invoice_number"`
	Confidence             float64           `json:"confidence_score"`
	MatchingFields         map[string]string `json:"matching_fields,omitempty"`
	Evidence               []string          `json:"evidence"`
	RecommendedAction      Action            `json:"recommended_action"`
}

// DuplicateAnalysisResult is the verdict for one invoice. Confidence is nil
// unless Status is COMPLETE.
type DuplicateAnalysisResult struct {
	InvoiceID          string           `json:"invoice_id"`
	InvoiceNumber      string           `json:"invoice_number"`
	Status             AnalysisStatus   `json:"status"`
	IsDuplicate        bool             `json:"is_duplicate"`
	Confidence         *float64         `json:"confidence_score"`
	Matches            []DuplicateMatch `json:"duplicate_matches"`
	CandidatesCompared int              `json:"candidates_compared"`
	RecommendedAction  Action           `json:"recommended_action"`
	Summary            string           `json:"analysis_summary"`
	Error              string           `json:"error,omitempty"`
}

// ConfidenceScore returns the overall confidence and whether it is defined
func (r *DuplicateAnalysisResult) ConfidenceScore() (float64, bool) {
	if r.Confidence == nil {
		return 0, false
	}
	return *r.Confidence, true
}
