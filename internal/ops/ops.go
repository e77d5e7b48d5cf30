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

// Package ops sequences the components behind each pesign operation. It owns
// the action bitmask and the fixed table of legal flag combinations.
package ops

import (
	"bytes"
	"crypto"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/sassoftware/pesign/lib/atomicfile"
	"github.com/sassoftware/pesign/lib/authenticode"
	"github.com/sassoftware/pesign/lib/certstore"
	"github.com/sassoftware/pesign/lib/pefile"
	"github.com/sassoftware/pesign/lib/x509tools"
)

const armorBlockType = "SIGNATURE"

// Descriptor is everything one operation needs
type Descriptor struct {
	Actions Action

	InFile  string
	OutFile string

	CertDir  string
	Nickname string

	RawSigFile    string
	InSattrsFile  string
	OutSattrsFile string
	InSigFile     string
	OutSigFile    string
	OutKeyFile    string
	OutCertFile   string

	SigNum  int
	Hash    crypto.Hash
	Force   bool
	Armor   bool
	Padding bool

	Log    zerolog.Logger
	Stdout io.Writer
}

func (desc *Descriptor) stdout() io.Writer {
	if desc.Stdout != nil {
		return desc.Stdout
	}
	return os.Stdout
}

// Run matches the action mask against the recognized combinations and
// executes it. Anything outside the table fails with IncompatibleFlagsError.
func Run(desc *Descriptor) error {
	switch desc.Actions {
	case NoFlags:
		fmt.Fprintln(os.Stderr, "Nothing to do.")
		return nil
	// we have the actual binary signature and the signing cert, but not the
	// SignedData that goes with it
	case ImportRawSignature | ImportSattrs:
		return desc.importRawSignature()
	case ExportSattrs:
		return desc.exportSattrs()
	// add a signature from a file
	case ImportSignature:
		return desc.importSignature()
	case ExportPubkey:
		return desc.exportPubkey()
	case ExportCert:
		return desc.exportCert()
	// find a signature in the binary and save it to a file
	case ExportSignature:
		return desc.exportSignature()
	// remove a signature from the binary
	case RemoveSignature:
		return desc.removeSignature()
	// list signatures in the binary
	case ListSignatures:
		return desc.listSignatures()
	case GenerateDigest | PrintDigest:
		return desc.printDigest()
	// generate a signature and save it in a separate file
	case ExportSignature | GenerateSignature:
		return desc.exportNewSignature()
	// generate a signature and embed it in the binary
	case ImportSignature | GenerateSignature:
		return desc.embedNewSignature()
	default:
		return IncompatibleFlagsError{desc.Actions}
	}
}

func (desc *Descriptor) checkInputs() error {
	if desc.InFile == "" {
		return errors.New("no input file specified")
	}
	if desc.OutFile == "" {
		return errors.New("no output file specified")
	}
	if desc.InFile == desc.OutFile {
		return ErrInPlaceUnsupported
	}
	if !desc.Force {
		if _, err := os.Lstat(desc.OutFile); err == nil {
			return atomicfile.OutputExistsError{Path: desc.OutFile}
		}
	}
	return nil
}

func (desc *Descriptor) openInput() (*pefile.Image, *pefile.CertTable, error) {
	if desc.InFile == "" {
		return nil, nil, errors.New("no input file specified")
	}
	img, err := pefile.Open(desc.InFile)
	if err != nil {
		return nil, nil, err
	}
	table, err := pefile.ParseCertTable(img)
	if err != nil {
		return nil, nil, err
	}
	desc.Log.Debug().
		Str("in", desc.InFile).
		Int64("size", img.Size()).
		Int("signatures", table.Count()).
		Msg("opened input image")
	return img, table, nil
}

func (desc *Descriptor) findIdentity() (*certstore.Identity, error) {
	store, err := certstore.Open(desc.CertDir)
	if err != nil {
		return nil, err
	}
	id, err := store.Find(desc.Nickname)
	if err != nil {
		return nil, err
	}
	desc.Log.Debug().
		Str("nickname", desc.Nickname).
		Str("subject", x509tools.FormatSubject(id.Certificate())).
		Msg("resolved signing identity")
	return id, nil
}

func (desc *Descriptor) printDigest() error {
	img, _, err := desc.openInput()
	if err != nil {
		return err
	}
	ds, err := authenticode.DigestImage(img, []crypto.Hash{desc.Hash}, desc.Padding)
	if err != nil {
		return err
	}
	fmt.Fprintf(desc.stdout(), "hash: %x\n", ds.Selected().Sum)
	return nil
}

func (desc *Descriptor) listSignatures() error {
	_, table, err := desc.openInput()
	if err != nil {
		return err
	}
	for i, entry := range table.Entries() {
		sig, err := authenticode.ParseSignature(entry.Data)
		if err != nil {
			fmt.Fprintf(desc.stdout(), "signature %d: type=0x%04x size=%d: %s\n",
				i, entry.Type, len(entry.Data), err)
			continue
		}
		cert, err := sig.SignerCertificate()
		subject := "(unknown signer)"
		if err == nil {
			subject = x509tools.FormatSubject(cert)
		}
		fmt.Fprintf(desc.stdout(), "signature %d: digest=%s size=%d subject=%q%s\n",
			i, x509tools.HashNames[sig.HashFunc], len(entry.Data), subject,
			authenticode.FormatOpus(sig.OpusInfo))
	}
	return nil
}

func (desc *Descriptor) exportSignature() error {
	_, table, err := desc.openInput()
	if err != nil {
		return err
	}
	if desc.SigNum < 0 || desc.SigNum >= table.Count() {
		return InvalidSignatureNumberError{Num: desc.SigNum, Count: table.Count()}
	}
	blob := table.Entries()[desc.SigNum].Data
	if desc.Armor {
		blob = pem.EncodeToMemory(&pem.Block{Type: armorBlockType, Bytes: blob})
	}
	return atomicfile.WriteFile(desc.OutSigFile, blob, desc.Force)
}

func (desc *Descriptor) exportSattrs() error {
	img, _, err := desc.openInput()
	if err != nil {
		return err
	}
	ds, err := authenticode.DigestImage(img, []crypto.Hash{desc.Hash}, true)
	if err != nil {
		return err
	}
	blob, err := authenticode.SignedAttributes(ds.Selected(), nil)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(desc.OutSattrsFile, blob, desc.Force)
}

func (desc *Descriptor) exportPubkey() error {
	id, err := desc.findIdentity()
	if err != nil {
		return err
	}
	der, err := id.PublicKeyDER()
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(desc.OutKeyFile, der, desc.Force)
}

func (desc *Descriptor) exportCert() error {
	id, err := desc.findIdentity()
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(desc.OutCertFile, id.Certificate().Raw, desc.Force)
}

func (desc *Descriptor) removeSignature() error {
	if err := desc.checkInputs(); err != nil {
		return err
	}
	img, table, err := desc.openInput()
	if err != nil {
		return err
	}
	if desc.SigNum < 0 || desc.SigNum >= table.Count() {
		return InvalidSignatureNumberError{Num: desc.SigNum, Count: table.Count()}
	}
	out := img.Clone(0)
	otable, err := pefile.ParseCertTable(out)
	if err != nil {
		return err
	}
	if err := otable.Remove(desc.SigNum); err != nil {
		return err
	}
	if err := out.ZeroChecksum(); err != nil {
		return err
	}
	desc.Log.Debug().Int("signum", desc.SigNum).Int64("size", out.Size()).Msg("removed signature")
	return atomicfile.WriteFile(desc.OutFile, out.Bytes(), desc.Force)
}

func (desc *Descriptor) importSignature() error {
	if err := desc.checkInputs(); err != nil {
		return err
	}
	blob, err := readSignatureFile(desc.InSigFile)
	if err != nil {
		return err
	}
	// make sure it decodes before touching the image
	if _, err := authenticode.ParseSignature(blob); err != nil {
		return err
	}
	img, table, err := desc.openInput()
	if err != nil {
		return err
	}
	if desc.SigNum > table.Count()+1 {
		return InvalidSignatureNumberError{Num: desc.SigNum, Count: table.Count()}
	}
	out := img.Clone(int64(len(blob)) + 64)
	otable, err := pefile.ParseCertTable(out)
	if err != nil {
		return err
	}
	if err := otable.AllocateSpace(align8(8 + int64(len(blob)))); err != nil {
		return err
	}
	if err := otable.Insert(blob, desc.SigNum); err != nil {
		return err
	}
	if err := out.ZeroChecksum(); err != nil {
		return err
	}
	return atomicfile.WriteFile(desc.OutFile, out.Bytes(), desc.Force)
}

func (desc *Descriptor) exportNewSignature() error {
	id, err := desc.findIdentity()
	if err != nil {
		return err
	}
	signer, err := id.Signer()
	if err != nil {
		return err
	}
	img, _, err := desc.openInput()
	if err != nil {
		return err
	}
	ds, err := authenticode.DigestImage(img, []crypto.Hash{desc.Hash}, true)
	if err != nil {
		return err
	}
	blob, err := authenticode.Sign(ds.Selected(), signer, id.Chain(), nil)
	if err != nil {
		return err
	}
	if desc.Armor {
		blob = pem.EncodeToMemory(&pem.Block{Type: armorBlockType, Bytes: blob})
	}
	return atomicfile.WriteFile(desc.OutSigFile, blob, desc.Force)
}

func (desc *Descriptor) embedNewSignature() error {
	if err := desc.checkInputs(); err != nil {
		return err
	}
	id, err := desc.findIdentity()
	if err != nil {
		return err
	}
	if _, err := id.Signer(); err != nil {
		return err
	}
	img, table, err := desc.openInput()
	if err != nil {
		return err
	}
	if desc.SigNum > table.Count()+1 {
		return InvalidSignatureNumberError{Num: desc.SigNum, Count: table.Count()}
	}
	est := authenticode.EstimateSignatureSize(id.Chain(), id.Certificate().PublicKey)
	out := img.Clone(int64(est) + 64)
	if err := SignImage(out, id, desc.Hash, desc.SigNum, nil, desc.Log); err != nil {
		return err
	}
	return atomicfile.WriteFile(desc.OutFile, out.Bytes(), desc.Force)
}

func (desc *Descriptor) importRawSignature() error {
	if err := desc.checkInputs(); err != nil {
		return err
	}
	id, err := desc.findIdentity()
	if err != nil {
		return err
	}
	sattrs, err := os.ReadFile(desc.InSattrsFile)
	if err != nil {
		return err
	}
	rawSig, err := os.ReadFile(desc.RawSigFile)
	if err != nil {
		return err
	}
	img, _, err := desc.openInput()
	if err != nil {
		return err
	}
	est := authenticode.EstimateSignatureSize(id.Chain(), id.Certificate().PublicKey)
	out := img.Clone(int64(est) + 64)
	otable, err := pefile.ParseCertTable(out)
	if err != nil {
		return err
	}
	if err := out.ZeroChecksum(); err != nil {
		return err
	}
	if err := otable.AllocateSpace(align8(8 + int64(est))); err != nil {
		return err
	}
	ds, err := authenticode.DigestImage(out, []crypto.Hash{desc.Hash}, true)
	if err != nil {
		return err
	}
	blob, err := authenticode.AssembleRawSignature(ds.Selected(), sattrs, rawSig, id.Chain())
	if err != nil {
		return err
	}
	if err := otable.Insert(blob, desc.SigNum); err != nil {
		return err
	}
	return atomicfile.WriteFile(desc.OutFile, out.Bytes(), desc.Force)
}

// readSignatureFile loads a detached signature, stripping PEM armor when
// present
func readSignatureFile(path string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(bytes.TrimSpace(blob), []byte("-----BEGIN")) {
		block, _ := pem.Decode(blob)
		if block == nil {
			return nil, fmt.Errorf("%s: invalid PEM armor", path)
		}
		return block.Bytes, nil
	}
	return blob, nil
}

func align8(n int64) int64 {
	return (n + 7) / 8 * 8
}
