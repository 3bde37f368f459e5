package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type       string           // Assertion type for categorization
	Expected   string           // Human-readable expected outcome
	Actual     string           // Human-readable actual outcome
	Statements []StatementTrace // Full statement trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nStatements:\n")
	for i, st := range e.Statements {
		fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, st.Op, st.CQL)
	}
	return buf.String()
}

func matches(st StatementTrace, fragment, op string) bool {
	return strings.Contains(st.CQL, fragment) && (op == "" || st.Op == op)
}

// assertStatementContains checks that some statement contains the fragment.
func assertStatementContains(stmts []StatementTrace, a Assertion) error {
	for _, st := range stmts {
		if matches(st, a.Fragment, a.Op) {
			return nil
		}
	}

	expected := fmt.Sprintf("statement containing %q", a.Fragment)
	if a.Op != "" {
		expected = fmt.Sprintf("%s statement containing %q", a.Op, a.Fragment)
	}
	return &AssertionError{
		Type:       AssertStatementContains,
		Expected:   expected,
		Actual:     "not found",
		Statements: stmts,
	}
}

// assertStatementOrder checks that the fragments first appear in the given
// order. Other statements may come in between.
func assertStatementOrder(stmts []StatementTrace, a Assertion) error {
	positions := make([]int, len(a.Fragments))
	for i, fragment := range a.Fragments {
		positions[i] = -1
		for j, st := range stmts {
			if strings.Contains(st.CQL, fragment) {
				positions[i] = j
				break
			}
		}
		if positions[i] < 0 {
			return &AssertionError{
				Type:       AssertStatementOrder,
				Expected:   fmt.Sprintf("all fragments present: %q", a.Fragments),
				Actual:     fmt.Sprintf("missing fragment: %q", fragment),
				Statements: stmts,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertStatementOrder,
				Expected: fmt.Sprintf("fragments in order: %q", a.Fragments),
				Actual: fmt.Sprintf("%q (pos %d) should be before %q (pos %d)",
					a.Fragments[i-1], positions[i-1]+1, a.Fragments[i], positions[i]+1),
				Statements: stmts,
			}
		}
	}
	return nil
}

// assertStatementCount checks that exactly Count statements contain the fragment.
func assertStatementCount(stmts []StatementTrace, a Assertion) error {
	count := 0
	for _, st := range stmts {
		if strings.Contains(st.CQL, a.Fragment) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:       AssertStatementCount,
			Expected:   fmt.Sprintf("%d statements containing %q", a.Count, a.Fragment),
			Actual:     fmt.Sprintf("%d", count),
			Statements: stmts,
		}
	}
	return nil
}

// EvaluateAssertions checks every assertion against the statements of
// the result and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	stmts := result.Statements()
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertStatementContains:
			err = assertStatementContains(stmts, a)
		case AssertStatementOrder:
			err = assertStatementOrder(stmts, a)
		case AssertStatementCount:
			err = assertStatementCount(stmts, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}
