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

package certstore

import "fmt"

// CertificateNotFoundError reports a nickname that matched nothing in the
// certificate directory
type CertificateNotFoundError struct {
	Nickname string
	Dir      string
}

func (e CertificateNotFoundError) Error() string {
	return fmt.Sprintf("could not find certificate %s in %s", e.Nickname, e.Dir)
}

// PrivateKeyUnavailableError reports an identity whose certificate was found
// but whose private key is not in the store
type PrivateKeyUnavailableError struct {
	Nickname string
}

func (e PrivateKeyUnavailableError) Error() string {
	return fmt.Sprintf("no private key available for certificate %s", e.Nickname)
}

// SigningFailedError wraps a failure from the key itself
type SigningFailedError struct {
	Nickname string
	Err      error
}

func (e SigningFailedError) Error() string {
	return fmt.Sprintf("signing with certificate %s: %s", e.Nickname, e.Err)
}

func (e SigningFailedError) Unwrap() error {
	return e.Err
}
