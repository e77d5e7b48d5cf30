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
	"bytes"
	"encoding/asn1"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// marshal and unmarshal so FullBytes is set
func roundTrip(t *testing.T, l AttributeList) AttributeList {
	t.Helper()
	raw, err := marshalUnsortedSet(l)
	require.NoError(t, err)
	var l2 AttributeList
	_, err = asn1.UnmarshalWithParams(raw, &l2, "set")
	require.NoError(t, err)
	return l2
}

func TestAttributeList(t *testing.T) {
	var l AttributeList
	assert.False(t, l.Exists(OidAttributeSigningTime))
	a := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, l.Add(OidAttributeSigningTime, a))
	ll := roundTrip(t, l)
	assert.True(t, ll.Exists(OidAttributeSigningTime))
	var x time.Time
	if assert.NoError(t, ll.GetOne(OidAttributeSigningTime, &x)) {
		assert.Equal(t, a, x)
	}

	b := a.AddDate(0, 0, 1)
	assert.NoError(t, l.Add(OidAttributeSigningTime, b))
	ll = roundTrip(t, l)
	assert.Error(t, ll.GetOne(OidAttributeSigningTime, &x))
	var times []time.Time
	if assert.NoError(t, ll.GetAll(OidAttributeSigningTime, &times)) {
		assert.Equal(t, []time.Time{a, b}, times)
	}
}

func TestAttributeMissing(t *testing.T) {
	var l AttributeList
	require.NoError(t, l.Add(OidAttributeContentType, OidData))
	var x asn1.ObjectIdentifier
	err := l.GetOne(OidAttributeMessageDigest, &x)
	assert.ErrorAs(t, err, &ErrNoAttribute{})
}

func TestAttributeSetSorting(t *testing.T) {
	// add in an order that is not DER order
	var l AttributeList
	require.NoError(t, l.Add(OidAttributeMessageDigest, bytes.Repeat([]byte{0xAB}, 32)))
	require.NoError(t, l.Add(OidAttributeContentType, OidSignedData))

	raw, err := l.Bytes()
	require.NoError(t, err)
	// two calls are byte-identical
	raw2, err := l.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, raw2)

	// the members of the set come out sorted by their encodings
	var inner asn1.RawValue
	_, err = asn1.Unmarshal(raw, &inner)
	require.NoError(t, err)
	var members [][]byte
	contents := inner.Bytes
	for len(contents) != 0 {
		var member asn1.RawValue
		rest, err := asn1.Unmarshal(contents, &member)
		require.NoError(t, err)
		members = append(members, member.FullBytes)
		contents = rest
	}
	require.Len(t, members, 2)
	assert.True(t, sort.SliceIsSorted(members, func(i, j int) bool {
		return bytes.Compare(members[i], members[j]) < 0
	}))

	// parse of the detached form round-trips
	parsed, err := ParseAttributes(raw)
	require.NoError(t, err)
	assert.True(t, parsed.Exists(OidAttributeContentType))
	assert.True(t, parsed.Exists(OidAttributeMessageDigest))
}
