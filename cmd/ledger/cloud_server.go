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
	"io"
	"net"

	"github.com/attic-labs/kingpin"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/libraries/ledgerconf"
	"github.com/dolthub/ledger/store/cloud/httpcloud"
	"github.com/dolthub/ledger/store/db"
)

func cloudServerCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("cloud-server", "Runs a cloud devices sync their pages through")
	listen := clause.Flag("listen", "overrides cloud_server.listen").String()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		sc := cfg.CloudServer
		if *listen != "" {
			sc.Listen = *listen
		}
		log := logrus.WithField("component", "cloud-server")

		d, err := db.Open(ctx, db.Backend(sc.Backend), sc.Path)
		if err != nil {
			return err
		}
		defer d.Close()

		var objects httpcloud.ObjectBackend = httpcloud.NewDbBackend(d)
		if sc.S3.Bucket != "" {
			s3b, err := httpcloud.NewS3Backend(sc.S3.Bucket, sc.S3.Prefix, sc.S3.Region, sc.S3.Auth)
			if err != nil {
				return err
			}
			objects = s3b
			log = log.WithField("bucket", sc.S3.Bucket)
		}

		srv := httpcloud.NewServer(d, objects, log)
		srv.SetMaxObjectSize(int64(sc.MaxObjectSize))
		l, err := net.Listen("tcp", sc.Listen)
		if err != nil {
			return errors.Wrapf(err, "listening on %s", sc.Listen)
		}
		log.WithField("max_object_size", humanize.IBytes(uint64(sc.MaxObjectSize))).Info("starting")

		done := make(chan error, 1)
		go func() { done <- srv.Serve(l) }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(sctx); err != nil {
			return err
		}
		return <-done
	}
}
