// Package junit parses JUnit XML reports so the runner can attach a test
// summary to the run result when the test stage leaves one behind.
package junit

import (
	"encoding/xml"
	"fmt"

	"gantry-runner/src/contracts"
)

// TestSuites is the root element for multiple test suites.
type TestSuites struct {
	XMLName    xml.Name    `xml:"testsuites"`
	TestSuites []TestSuite `xml:"testsuite"`
}

// TestSuite represents a <testsuite> element.
type TestSuite struct {
	Name      string     `xml:"name,attr"`
	Tests     int        `xml:"tests,attr"`
	Failures  int        `xml:"failures,attr"`
	Errors    int        `xml:"errors,attr"`
	Skipped   int        `xml:"skipped,attr"`
	TestCases []TestCase `xml:"testcase"`
}

// TestCase represents a <testcase> element.
type TestCase struct {
	Name      string   `xml:"name,attr"`
	ClassName string   `xml:"classname,attr"`
	Failure   *Failure `xml:"failure"`
	Error     *Failure `xml:"error"`
	Skipped   *Skipped `xml:"skipped"`
}

// Failure represents a test failure or error element.
type Failure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// Skipped represents a skipped test.
type Skipped struct {
	Message string `xml:"message,attr"`
}

// Summarize parses JUnit XML data and aggregates it into a TestSummary.
// Accepts either a <testsuites> root or a single <testsuite>.
func Summarize(data []byte) (*contracts.TestSummary, error) {
	suites, err := parseSuites(data)
	if err != nil {
		return nil, err
	}

	summary := &contracts.TestSummary{}
	for _, suite := range suites {
		summary.Tests += suite.Tests
		summary.Failures += suite.Failures
		summary.Errors += suite.Errors
		summary.Skipped += suite.Skipped

		for _, tc := range suite.TestCases {
			if tc.Failure == nil && tc.Error == nil {
				continue
			}
			summary.Failed = append(summary.Failed, caseName(suite, tc))
		}
	}
	return summary, nil
}

func parseSuites(data []byte) ([]TestSuite, error) {
	var root TestSuites
	if err := xml.Unmarshal(data, &root); err == nil && len(root.TestSuites) > 0 {
		return root.TestSuites, nil
	}

	var suite TestSuite
	if err := xml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse JUnit XML: %w", err)
	}
	return []TestSuite{suite}, nil
}

func caseName(suite TestSuite, tc TestCase) string {
	prefix := tc.ClassName
	if prefix == "" {
		prefix = suite.Name
	}
	if prefix == "" {
		return tc.Name
	}
	return prefix + "/" + tc.Name
}
