// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

// Exit codes for the drover CLI.
const (
	ExitSuccess        = 0
	ExitWorkflowFailed = 1
	ExitMissingArgs    = 2
)

// ExitError is an error that carries an exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewWorkflowFailedError reports a run that executed but did not succeed.
func NewWorkflowFailedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitWorkflowFailed, Message: msg, Cause: cause}
}

// NewMissingArgsError reports absent or invalid command arguments.
func NewMissingArgsError(msg string) *ExitError {
	return &ExitError{Code: ExitMissingArgs, Message: msg}
}

// HandleExitError prints the error and exits with its code. Errors
// without a code exit as workflow failures.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	if suggestion := pkgerrors.SuggestionOf(err); suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", suggestion)
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(ExitWorkflowFailed)
}
