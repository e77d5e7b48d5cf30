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

// Package pesigncmd is the pesign command line front-end. It turns the flag
// set into an operation descriptor and runs it, exiting exactly once at the
// top.
package pesigncmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sassoftware/pesign/config"
	"github.com/sassoftware/pesign/internal/ops"
	"github.com/sassoftware/pesign/lib/x509tools"
	"github.com/sassoftware/pesign/server/daemon"
)

var (
	argConfig  string
	argIn      string
	argOut     string
	argCert    string
	argCertDir string
	argToken   string

	argSign   bool
	argHash   bool
	argRemove bool
	argList   bool
	argShow   bool

	argInSig      string
	argOutSig     string
	argRawSig     string
	argInSattrs   string
	argOutSattrs  string
	argOutPubkey  string
	argOutCert    string
	argDigestName string
	argSigNum     int

	argForce   bool
	argArmor   bool
	argPadding bool
	argVerbose bool
	argDaemon  bool
	argNoFork  bool
	argVersion bool
)

var RootCmd = &cobra.Command{
	Use:           "pesign",
	Short:         "sign, verify and edit Authenticode signatures on PE binaries",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          run,
}

func init() {
	f := RootCmd.Flags()
	f.StringVarP(&argIn, "in", "i", "", "specify input file")
	f.StringVarP(&argOut, "out", "o", "", "specify output file")
	f.StringVarP(&argCert, "certificate", "c", "", "specify certificate nickname")
	f.StringVarP(&argCertDir, "certdir", "n", "", "specify certificate database directory")
	f.StringVarP(&argToken, "token", "t", "", "token name (accepted but not used; keys are looked up in --certdir)")
	f.BoolVarP(&argSign, "sign", "s", false, "create a new signature")
	f.BoolVarP(&argHash, "hash", "h", false, "hash binary")
	f.StringVarP(&argDigestName, "digest_type", "d", "sha256", "digest type to use for pe hash")
	f.StringVarP(&argInSig, "import-signature", "m", "", "import signature from file")
	f.StringVarP(&argOutSig, "export-signature", "e", "", "export signature to file")
	f.StringVarP(&argRawSig, "import-raw-signature", "R", "", "import raw signature from file")
	f.StringVarP(&argInSattrs, "import-signed-attributes", "I", "", "import signed attributes from file")
	f.StringVarP(&argOutSattrs, "export-signed-attributes", "E", "", "export signed attributes to file")
	f.StringVarP(&argOutPubkey, "export-pubkey", "K", "", "export pubkey to file")
	f.StringVarP(&argOutCert, "export-cert", "C", "", "export signing cert to file")
	f.IntVarP(&argSigNum, "signature-number", "u", 0, "specify which signature to operate on")
	f.BoolVarP(&argRemove, "remove-signature", "r", false, "remove signature")
	f.BoolVarP(&argList, "list-signatures", "l", false, "list signatures")
	f.BoolVarP(&argShow, "show-signature", "S", false, "show signature")
	f.BoolVarP(&argForce, "force", "f", false, "force overwriting of output file")
	f.BoolVarP(&argArmor, "ascii-armor", "a", false, "use ascii armoring")
	f.BoolVarP(&argPadding, "padding", "P", false, "pad data section")
	f.BoolVarP(&argVerbose, "verbose", "v", false, "be very verbose")
	f.BoolVarP(&argDaemon, "daemonize", "D", false, "run as a daemon process")
	f.BoolVarP(&argNoFork, "nofork", "N", false, "don't fork when daemonizing")
	f.StringVar(&argConfig, "config", "", "configuration file")
	f.BoolVar(&argVersion, "version", false, "show version and exit")
	// --hash owns the -h shorthand, so the help flag loses it
	f.Bool("help", false, "help for pesign")
}

// Main runs the command and exits once, with status 1 on any error
func Main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pesign: %s\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if argVersion {
		fmt.Printf("pesign version %s\n", config.Version)
		return nil
	}
	if help, _ := cmd.Flags().GetBool("help"); help {
		return cmd.Usage()
	}
	if argDigestName == "help" {
		fmt.Println(strings.Join(x509tools.SupportedHashNames(), "\n"))
		return nil
	}
	hash := x509tools.HashByName(argDigestName)
	if hash == 0 {
		return fmt.Errorf("digest %q not found", argDigestName)
	}
	conf, err := config.Load(argConfig)
	if err != nil {
		return err
	}
	if argCertDir == "" {
		argCertDir = conf.CertDir
	}
	if argToken == "" {
		argToken = conf.Token
	}

	logLevel := zerolog.WarnLevel
	if argVerbose {
		logLevel = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(logLevel)

	actions := buildActions()
	if argSign && argCert == "" {
		return errors.New("signing requested but no certificate nickname provided")
	}
	if actions == ops.Daemonize {
		return daemon.Run(daemon.Options{
			Socket:  conf.Daemon.Socket,
			CertDir: argCertDir,
			Fork:    !argNoFork,
			Log:     log,
		})
	}

	desc := &ops.Descriptor{
		Actions:       actions,
		InFile:        argIn,
		OutFile:       argOut,
		CertDir:       argCertDir,
		Nickname:      argCert,
		RawSigFile:    argRawSig,
		InSattrsFile:  argInSattrs,
		OutSattrsFile: argOutSattrs,
		InSigFile:     argInSig,
		OutSigFile:    argOutSig,
		OutKeyFile:    argOutPubkey,
		OutCertFile:   argOutCert,
		SigNum:        argSigNum,
		Hash:          hash,
		Force:         argForce,
		Armor:         argArmor,
		Padding:       argPadding,
		Log:           log,
	}
	return ops.Run(desc)
}

// buildActions composes the action bitmask the same way pesign always has
func buildActions() ops.Action {
	var actions ops.Action
	if argDaemon {
		actions |= ops.Daemonize
	}
	if argRawSig != "" {
		actions |= ops.ImportRawSignature
	}
	if argInSattrs != "" {
		actions |= ops.ImportSattrs
	}
	if argOutSattrs != "" {
		actions |= ops.ExportSattrs
	}
	if argInSig != "" {
		actions |= ops.ImportSignature
	}
	if argOutPubkey != "" {
		actions |= ops.ExportPubkey
	}
	if argOutCert != "" {
		actions |= ops.ExportCert
	}
	if argOutSig != "" {
		actions |= ops.ExportSignature
	}
	if argRemove {
		actions |= ops.RemoveSignature
	}
	if argList || argShow {
		actions |= ops.ListSignatures
	}
	if argSign {
		actions |= ops.GenerateSignature
		if actions&ops.ExportSignature == 0 {
			actions |= ops.ImportSignature
		}
	}
	if argHash {
		actions |= ops.GenerateDigest | ops.PrintDigest
	}
	return actions
}
