package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Reporter formats scenario results.
type Reporter interface {
	ReportSuite(result *SuiteResult)
	ReportResult(result *Result)
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a text reporter. Verbose reports show every
// step and expectation.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{writer: w, verbose: verbose}
}

// ReportSuite reports suite results in text format.
func (r *TextReporter) ReportSuite(result *SuiteResult) {
	fmt.Fprintf(r.writer, "\n=== Suite: %s ===\n", result.Name)
	fmt.Fprintf(r.writer, "Duration: %s\n\n", result.Duration.Round(time.Millisecond))

	for _, res := range result.Results {
		r.ReportResult(res)
	}

	fmt.Fprintf(r.writer, "\n--- Summary ---\n")
	fmt.Fprintf(r.writer, "Total:   %d\n", len(result.Results))
	fmt.Fprintf(r.writer, "Passed:  %d\n", result.PassCount)
	fmt.Fprintf(r.writer, "Failed:  %d\n", result.FailCount)
	if total := result.PassCount + result.FailCount; total > 0 {
		fmt.Fprintf(r.writer, "Pass Rate: %.1f%%\n", float64(result.PassCount)/float64(total)*100)
	}
}

// ReportResult reports a single scenario in text format.
func (r *TextReporter) ReportResult(result *Result) {
	sc := result.Scenario
	status := "PASS"
	if !result.Passed {
		status = "FAIL"
	}

	fmt.Fprintf(r.writer, "[%s] %s - %s (%s, virtual %s, %d events)\n",
		status, sc.ID, sc.Name, result.Duration.Round(time.Millisecond), result.VirtualElapsed, result.Events)
	if !result.Passed && result.Error != nil {
		fmt.Fprintf(r.writer, "       Error: %v\n", result.Error)
	}
	if !r.verbose {
		return
	}

	for _, sr := range result.StepResults {
		stepStatus := "PASS"
		if !sr.Passed {
			stepStatus = "FAIL"
		}
		fmt.Fprintf(r.writer, "    [%s] Step %d: %s (%s)\n",
			stepStatus, sr.StepIndex+1, sr.Step.Action, sr.Duration.Round(time.Millisecond))
		if !sr.Passed && sr.Error != nil {
			fmt.Fprintf(r.writer, "           Error: %v\n", sr.Error)
		}
		for _, key := range sortedKeys(sr.ExpectResults) {
			er := sr.ExpectResults[key]
			expStatus := "OK"
			if !er.Passed {
				expStatus = "FAILED"
			}
			fmt.Fprintf(r.writer, "           [%s] %s: %s\n", expStatus, key, er.Message)
		}
	}
}

func sortedKeys(m map[string]*ExpectResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSONReporter outputs JSON reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{writer: w, pretty: pretty}
}

type jsonSuite struct {
	Name     string       `json:"name"`
	Duration string       `json:"duration"`
	Total    int          `json:"total"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Results  []jsonResult `json:"results"`
}

type jsonResult struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	Duration       string     `json:"duration"`
	VirtualElapsed string     `json:"virtual_elapsed"`
	Events         int        `json:"events"`
	Error          string     `json:"error,omitempty"`
	Steps          []jsonStep `json:"steps,omitempty"`
}

type jsonStep struct {
	Index   int                   `json:"index"`
	Action  string                `json:"action"`
	Status  string                `json:"status"`
	Error   string                `json:"error,omitempty"`
	Expects map[string]jsonExpect `json:"expects,omitempty"`
	Outputs map[string]any        `json:"outputs,omitempty"`
}

type jsonExpect struct {
	Passed   bool   `json:"passed"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Message  string `json:"message"`
}

// ReportSuite reports suite results in JSON format.
func (r *JSONReporter) ReportSuite(result *SuiteResult) {
	js := jsonSuite{
		Name:     result.Name,
		Duration: result.Duration.Round(time.Millisecond).String(),
		Total:    len(result.Results),
		Passed:   result.PassCount,
		Failed:   result.FailCount,
		Results:  make([]jsonResult, 0, len(result.Results)),
	}
	for _, res := range result.Results {
		js.Results = append(js.Results, toJSON(res))
	}
	r.write(js)
}

// ReportResult reports a single scenario in JSON format.
func (r *JSONReporter) ReportResult(result *Result) {
	r.write(toJSON(result))
}

func toJSON(result *Result) jsonResult {
	jr := jsonResult{
		ID:             result.Scenario.ID,
		Name:           result.Scenario.Name,
		Status:         "passed",
		Duration:       result.Duration.Round(time.Millisecond).String(),
		VirtualElapsed: result.VirtualElapsed.String(),
		Events:         result.Events,
	}
	if !result.Passed {
		jr.Status = "failed"
	}
	if result.Error != nil {
		jr.Error = result.Error.Error()
	}

	for _, sr := range result.StepResults {
		js := jsonStep{
			Index:   sr.StepIndex,
			Action:  sr.Step.Action,
			Status:  "passed",
			Outputs: sr.Output,
		}
		if !sr.Passed {
			js.Status = "failed"
		}
		if sr.Error != nil {
			js.Error = sr.Error.Error()
		}
		if len(sr.ExpectResults) > 0 {
			js.Expects = make(map[string]jsonExpect, len(sr.ExpectResults))
			for key, er := range sr.ExpectResults {
				js.Expects[key] = jsonExpect{Passed: er.Passed, Expected: er.Expected, Actual: er.Actual, Message: er.Message}
			}
		}
		jr.Steps = append(jr.Steps, js)
	}
	return jr
}

func (r *JSONReporter) write(v any) {
	var (
		data []byte
		err  error
	)
	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`+"\n", err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
}
