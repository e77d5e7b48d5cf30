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

package pkcs7

import (
	"encoding/asn1"
	"fmt"
)

// MalformedCMSError reports a SignedData structure that could not be decoded
type MalformedCMSError struct {
	Err error
}

func (e MalformedCMSError) Error() string {
	return fmt.Sprintf("malformed CMS structure: %s", e.Err)
}

func (e MalformedCMSError) Unwrap() error {
	return e.Err
}

// UnsupportedContentTypeError reports an encapsulated content type other than
// the one the caller expected
type UnsupportedContentTypeError struct {
	Type asn1.ObjectIdentifier
}

func (e UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type %s", e.Type)
}

// ErrNoAttribute is returned when a requested attribute is missing from an
// attribute list
type ErrNoAttribute struct {
	ID asn1.ObjectIdentifier
}

func (e ErrNoAttribute) Error() string {
	return fmt.Sprintf("attribute not found: %s", e.ID)
}
