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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/attic-labs/kingpin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/libraries/ledgerconf"
	"github.com/dolthub/ledger/store/ledger"
	ledgersync "github.com/dolthub/ledger/store/sync"
)

const idlePollInterval = 100 * time.Millisecond

func serveCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("serve", "Syncs pages with the cloud and the mesh until interrupted")
	namespaces := clause.Flag("namespace", "syncs every page of the namespace stored on this device").Short('n').Strings()
	untilSynced := clause.Flag("until-synced", "exits once every page is synced").Bool()
	pages := clause.Arg("pages", "pages to sync, as namespace/page").Strings()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		e, err := openSynced(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		var open []*ledger.Page
		for _, ns := range *namespaces {
			names, err := e.repo.ListPages(ctx, ns)
			if err != nil {
				return err
			}
			for _, name := range names {
				p, err := e.repo.GetPage(ctx, ns, name)
				if err != nil {
					return err
				}
				open = append(open, p)
			}
		}
		for _, spec := range *pages {
			toks := strings.SplitN(spec, "/", 2)
			if len(toks) != 2 {
				return errors.Errorf("page %q is not namespace/page", spec)
			}
			p, err := e.repo.GetPage(ctx, toks[0], toks[1])
			if err != nil {
				return err
			}
			open = append(open, p)
		}

		backlogs := make(chan struct{}, len(open))
		for _, p := range open {
			watchPage(e.log, p, backlogs)
		}

		if !*untilSynced {
			<-ctx.Done()
			return nil
		}
		for range open {
			select {
			case <-backlogs:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := waitIdle(ctx, open); err != nil {
			return err
		}
		fmt.Fprintf(out, "synced %d pages\n", len(open))
		return nil
	}
}

func watchPage(log *logrus.Entry, p *ledger.Page, backlogs chan<- struct{}) {
	log = log.WithFields(logrus.Fields{"ns": p.Namespace, "page": p.ID})
	p.Sync.SetSyncWatcher(ledgersync.SyncStateWatcherFunc(func(download, upload ledgersync.State) {
		log.WithFields(logrus.Fields{"download": download, "upload": upload}).Info("sync state")
	}))
	p.Sync.SetOnBacklogDownloaded(func() {
		log.Info("backlog downloaded")
		backlogs <- struct{}{}
	})
}

func waitIdle(ctx context.Context, pages []*ledger.Page) error {
	t := time.NewTicker(idlePollInterval)
	defer t.Stop()
	for {
		idle := true
		for _, p := range pages {
			if !p.Sync.IsIdle() {
				idle = false
				break
			}
		}
		if idle {
			return nil
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
