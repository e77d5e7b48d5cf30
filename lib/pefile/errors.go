/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pefile

import "errors"

// MalformedImageError reports a PE file whose headers fail validation
type MalformedImageError struct {
	Reason string
}

func (e MalformedImageError) Error() string {
	return "malformed PE image: " + e.Reason
}

// MalformedCertTableError reports an attribute certificate table that cannot
// be parsed
type MalformedCertTableError struct {
	Reason string
}

func (e MalformedCertTableError) Error() string {
	return "malformed certificate table: " + e.Reason
}

var errNotWritable = errors.New("image is not writable")
