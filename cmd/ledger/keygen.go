// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/attic-labs/kingpin"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/libraries/ledgerconf"
)

func keygenCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("keygen", "Writes a new random master key")
	path := clause.Arg("path", "file to write the hex encoded key to").Required().String()
	force := clause.Flag("force", "overwrites an existing key").Bool()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		return writeKey(*path, *force, out)
	}
}

func writeKey(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Errorf("%s exists; devices sharing pages need the same key", path)
	}
	key := make([]byte, ledgerconf.MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote key to %s\n", path)
	return nil
}
