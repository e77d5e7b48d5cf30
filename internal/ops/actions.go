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

package ops

import (
	"errors"
	"fmt"
	"strings"
)

// Action is a bitmask over the requested operations. Only a fixed set of
// combinations is meaningful; Run rejects the rest.
type Action uint32

const (
	GenerateDigest Action = 1 << iota
	GenerateSignature
	ImportRawSignature
	ImportSignature
	ImportSattrs
	ExportSattrs
	ExportSignature
	RemoveSignature
	ListSignatures
	PrintDigest
	ExportPubkey
	ExportCert
	Daemonize

	NoFlags Action = 0
)

var actionNames = []struct {
	flag Action
	name string
}{
	{Daemonize, "daemonize"},
	{GenerateDigest, "hash"},
	{GenerateSignature, "sign"},
	{ImportRawSignature, "import-raw-sig"},
	{ImportSignature, "import-sig"},
	{ImportSattrs, "import-sattrs"},
	{ExportSattrs, "export-sattrs"},
	{ExportSignature, "export-sig"},
	{ExportPubkey, "export-pubkey"},
	{ExportCert, "export-cert"},
	{RemoveSignature, "remove"},
	{ListSignatures, "list"},
	{PrintDigest, "print"},
}

// Names expands a mask into the names of its set flags
func (a Action) Names() []string {
	var names []string
	for _, fn := range actionNames {
		if a&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

// NeedsCredentials reports whether the mask requires access to the
// credential store before anything else happens
func (a Action) NeedsCredentials() bool {
	return a&(GenerateSignature|ImportRawSignature|ExportPubkey|ExportCert) != 0
}

// IncompatibleFlagsError reports a flag combination outside the recognized
// set
type IncompatibleFlagsError struct {
	Actions Action
}

func (e IncompatibleFlagsError) Error() string {
	return fmt.Sprintf("incompatible flags (0x%08x): %s", uint32(e.Actions), strings.Join(e.Actions.Names(), " "))
}

// InvalidSignatureNumberError reports a signature index outside the table
type InvalidSignatureNumberError struct {
	Num   int
	Count int
}

func (e InvalidSignatureNumberError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("invalid signature number %d: image is not signed", e.Num)
	}
	return fmt.Sprintf("invalid signature number %d: must be between 0 and %d", e.Num, e.Count-1)
}

// ErrInPlaceUnsupported is returned when input and output name the same file
var ErrInPlaceUnsupported = errors.New("in-place file editing is not yet supported")
