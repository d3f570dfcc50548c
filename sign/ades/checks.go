package ades

// CheckStatus is the outcome of a single check inside a building block.
type CheckStatus string

// Check status values.
const (
	CheckPassed  CheckStatus = "PASSED"
	CheckFailed  CheckStatus = "FAILED"
	CheckSkipped CheckStatus = "SKIPPED"
)

// CheckResult records one executed (or skipped) check.
type CheckResult struct {
	Name          string        `json:"name"`
	Status        CheckStatus   `json:"status"`
	Indication    Indication    `json:"indication,omitempty"`
	SubIndication SubIndication `json:"subIndication,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// Check is a named step of a fail-fast check sequence. Run returns nil when
// the check passes.
type Check struct {
	Name string
	Run  func() *Conclusion
}

// RunChecks executes checks in order and stops at the first failure. Every
// check after the failing one is recorded as skipped. The returned
// conclusion is the first failure, or Passed when all checks pass.
func RunChecks(checks []Check) (*Conclusion, []CheckResult) {
	results := make([]CheckResult, 0, len(checks))
	for i, c := range checks {
		failure := c.Run()
		if failure == nil {
			results = append(results, CheckResult{Name: c.Name, Status: CheckPassed})
			continue
		}
		res := CheckResult{
			Name:          c.Name,
			Status:        CheckFailed,
			Indication:    failure.Indication,
			SubIndication: failure.SubIndication,
		}
		if len(failure.Errors) > 0 {
			res.Message = failure.Errors[0].Value
		}
		results = append(results, res)
		for _, rest := range checks[i+1:] {
			results = append(results, CheckResult{Name: rest.Name, Status: CheckSkipped})
		}
		return failure, results
	}
	return Passed(), results
}
