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
	"errors"
	"reflect"
	"sort"
)

type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

type AttributeList []Attribute

// Add appends a value to the list under the given attribute type
func (l *AttributeList) Add(oid asn1.ObjectIdentifier, value interface{}) error {
	encoded, err := asn1.Marshal(value)
	if err != nil {
		return err
	}
	*l = append(*l, Attribute{
		Type:   oid,
		Values: asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: encoded},
	})
	return nil
}

func (l AttributeList) Exists(oid asn1.ObjectIdentifier) bool {
	for _, attr := range l {
		if attr.Type.Equal(oid) {
			return true
		}
	}
	return false
}

// GetOne decodes exactly one value of the given attribute type into dest.
// It fails if the attribute is absent or appears more than once.
func (l AttributeList) GetOne(oid asn1.ObjectIdentifier, dest interface{}) error {
	found := false
	for _, attr := range l {
		if !attr.Type.Equal(oid) {
			continue
		}
		if found {
			return errors.New("attribute appears more than once: " + oid.String())
		}
		rest, err := asn1.Unmarshal(attr.Values.Bytes, dest)
		if err != nil {
			return MalformedCMSError{err}
		} else if len(rest) != 0 {
			return errors.New("attribute appears more than once: " + oid.String())
		}
		found = true
	}
	if !found {
		return ErrNoAttribute{oid}
	}
	return nil
}

// GetAll decodes every value of the given attribute type into dest, which
// must be a pointer to a slice.
func (l AttributeList) GetAll(oid asn1.ObjectIdentifier, dest interface{}) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr || destValue.Elem().Kind() != reflect.Slice {
		return errors.New("dest must be a pointer to a slice")
	}
	sliceValue := destValue.Elem()
	elemType := sliceValue.Type().Elem()
	for _, attr := range l {
		if !attr.Type.Equal(oid) {
			continue
		}
		contents := attr.Values.Bytes
		for len(contents) != 0 {
			elem := reflect.New(elemType)
			rest, err := asn1.Unmarshal(contents, elem.Interface())
			if err != nil {
				return MalformedCMSError{err}
			}
			sliceValue.Set(reflect.Append(sliceValue, elem.Elem()))
			contents = rest
		}
	}
	return nil
}

// sorted returns the list and its per-attribute encodings in DER SET OF
// order
func (l AttributeList) sorted() (AttributeList, [][]byte, error) {
	type pair struct {
		attr Attribute
		enc  []byte
	}
	pairs := make([]pair, len(l))
	for i, attr := range l {
		blob, err := asn1.Marshal(attr)
		if err != nil {
			return nil, nil, err
		}
		pairs[i] = pair{attr, blob}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].enc, pairs[j].enc) < 0
	})
	attrs := make(AttributeList, len(l))
	encoded := make([][]byte, len(l))
	for i, p := range pairs {
		attrs[i] = p.attr
		encoded[i] = p.enc
	}
	return attrs, encoded, nil
}

// Sorted returns a copy of the list in DER SET OF order, the order the
// attributes must keep when embedded in a SignerInfo.
func (l AttributeList) Sorted() (AttributeList, error) {
	attrs, _, err := l.sorted()
	return attrs, err
}

// Bytes returns the DER encoding of the list as a SET OF with its members
// sorted by their encodings. This is the exact byte string covered by the
// signature in a SignerInfo.
func (l AttributeList) Bytes() ([]byte, error) {
	_, encoded, err := l.sorted()
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	for _, blob := range encoded {
		body.Write(blob)
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      body.Bytes(),
	})
}

// marshalUnsortedSet encodes the list as a SET OF in insertion order
func marshalUnsortedSet(l AttributeList) ([]byte, error) {
	var body bytes.Buffer
	for _, attr := range l {
		blob, err := asn1.Marshal(attr)
		if err != nil {
			return nil, err
		}
		body.Write(blob)
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      body.Bytes(),
	})
}

// ParseAttributes decodes a detached SET OF Attribute blob, the format
// produced by Bytes and consumed when importing externally signed attributes.
func ParseAttributes(der []byte) (AttributeList, error) {
	var l AttributeList
	rest, err := asn1.UnmarshalWithParams(der, &l, "set")
	if err != nil {
		return nil, MalformedCMSError{err}
	} else if len(rest) != 0 {
		return nil, MalformedCMSError{errors.New("trailing garbage after attribute set")}
	}
	return l, nil
}
