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

// Package atomicfile writes output files through a temporary file so that
// interrupted operations never leave a partial output behind.
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
)

// OutputExistsError reports a refusal to overwrite an existing output
type OutputExistsError struct {
	Path string
}

func (e OutputExistsError) Error() string {
	return fmt.Sprintf("%q exists and --force was not given", e.Path)
}

type AtomicFile interface {
	io.WriteCloser
	Commit() error
}

type atomicFile struct {
	name     string
	tempfile *os.File
}

// Create opens a new output file. Unless force is set, an existing file at
// that path is refused before any bytes are written. Close without Commit
// removes the temporary file.
func Create(name string, force bool) (AtomicFile, error) {
	if !force {
		if _, err := os.Lstat(name); err == nil {
			return nil, OutputExistsError{name}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	tempfile, err := os.CreateTemp(path.Dir(name), path.Base(name)+".tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{name, tempfile}, nil
}

func (f *atomicFile) Write(d []byte) (int, error) {
	return f.tempfile.Write(d)
}

func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	os.Remove(f.tempfile.Name())
	f.tempfile = nil
	return nil
}

func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return errors.New("file is closed")
	}
	if err := f.tempfile.Chmod(0644); err != nil {
		return err
	}
	if err := f.tempfile.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.tempfile.Name(), f.name); err != nil {
		return err
	}
	f.tempfile = nil
	return nil
}

// WriteFile writes data to name with the same existence and atomicity rules
// as Create
func WriteFile(name string, data []byte, force bool) error {
	f, err := Create(name, force)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}
