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

package errors

import "errors"

// SuggestionOf walks the error chain and returns the first actionable
// suggestion found, or "" when the chain carries none. The CLI prints the
// suggestion below the error message.
func SuggestionOf(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Suggestion
	}
	return ""
}

// IsNotFound reports whether the chain contains a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
