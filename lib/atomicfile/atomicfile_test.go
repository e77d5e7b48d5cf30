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

package atomicfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/pesign/lib/atomicfile"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	require.NoError(t, atomicfile.WriteFile(path, []byte("first"), false))
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(blob))

	// existing output is refused without force
	err = atomicfile.WriteFile(path, []byte("second"), false)
	assert.ErrorAs(t, err, &atomicfile.OutputExistsError{})
	blob, _ = os.ReadFile(path)
	assert.Equal(t, "first", string(blob))

	// and replaced with it
	require.NoError(t, atomicfile.WriteFile(path, []byte("second"), true))
	blob, _ = os.ReadFile(path)
	assert.Equal(t, "second", string(blob))
}

func TestCloseWithoutCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	f, err := atomicfile.Create(path, false)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// nothing is left behind, neither output nor temp file
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitIsAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	f, err := atomicfile.Create(path, false)
	require.NoError(t, err)
	_, err = f.Write([]byte("payload"))
	require.NoError(t, err)
	// not visible until committed
	_, statErr := os.Lstat(path)
	assert.True(t, os.IsNotExist(statErr))
	require.NoError(t, f.Commit())
	require.NoError(t, f.Close())

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(blob))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
