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
	"os"
	"time"

	"github.com/attic-labs/kingpin"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/libraries/ledgerconf"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/ledger"
	"github.com/dolthub/ledger/store/pagestorage"
	"github.com/dolthub/ledger/store/prolly/tree"
)

type pageArgs struct {
	namespace *string
	page      *string
}

func addPageArgs(clause *kingpin.CmdClause) pageArgs {
	return pageArgs{
		namespace: clause.Arg("namespace", "namespace of the page").Required().String(),
		page:      clause.Arg("page", "name of the page").Required().String(),
	}
}

// withPage opens the page named by |args| in the local repository and
// runs |fn| on it.
func withPage(ctx context.Context, cfg *ledgerconf.Config, args pageArgs, fn func(*ledger.Page) error) error {
	e, err := openLocal(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	p, err := e.repo.GetPage(ctx, *args.namespace, *args.page)
	if err != nil {
		return err
	}
	return fn(p)
}

func headCommit(ctx context.Context, p *ledger.Page) (*datas.Commit, error) {
	heads, err := p.Storage.GetHeadCommits(ctx)
	if err != nil {
		return nil, err
	}
	return heads[len(heads)-1], nil
}

func formatCommit(c *datas.Commit) string {
	ts := time.Unix(0, c.Timestamp)
	kind := ""
	if c.IsMerge() {
		kind = " (merge)"
	} else if c.IsGenesis() {
		kind = " (genesis)"
	}
	return fmt.Sprintf("%s gen %d %s%s", c.ID, c.Generation, humanize.Time(ts), kind)
}

func pagesCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("pages", "Lists the pages of a namespace")
	ns := clause.Arg("namespace", "namespace to list").Required().String()
	del := clause.Flag("delete", "deletes a page from this device").Short('d').String()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		e, err := openLocal(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()
		if *del != "" {
			return e.repo.DeletePage(ctx, *ns, *del)
		}
		pages, err := e.repo.ListPages(ctx, *ns)
		if err != nil {
			return err
		}
		for _, p := range pages {
			fmt.Fprintln(out, p)
		}
		return nil
	}
}

func headsCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("heads", "Shows the heads of a page")
	args := addPageArgs(clause)

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		return withPage(ctx, cfg, args, func(p *ledger.Page) error {
			heads, err := p.Storage.GetHeadCommits(ctx)
			if err != nil {
				return err
			}
			for _, c := range heads {
				fmt.Fprintln(out, formatCommit(c))
			}
			return nil
		})
	}
}

func logCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("log", "Shows the history of a page, most recent first")
	args := addPageArgs(clause)
	maxCommits := clause.Flag("max-commits", "max number of commits to display (0 for all commits)").Short('n').Default("0").Int()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		return withPage(ctx, cfg, args, func(p *ledger.Page) error {
			heads, err := p.Storage.GetHeadCommits(ctx)
			if err != nil {
				return err
			}
			n := 0
			for i := len(heads) - 1; i >= 0; i-- {
				if *maxCommits > 0 && n >= *maxCommits {
					return nil
				}
				fmt.Fprintln(out, formatCommit(heads[i]))
				n++
			}
			it, err := datas.GetAncestors(ctx, p.Storage, heads...)
			if err != nil {
				return err
			}
			for *maxCommits == 0 || n < *maxCommits {
				c, err := it.Next(ctx)
				if err == io.EOF {
					return nil
				} else if err != nil {
					return err
				}
				fmt.Fprintln(out, formatCommit(c))
				n++
			}
			return nil
		})
	}
}

func getCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("get", "Prints the value of a key at the newest head")
	args := addPageArgs(clause)
	key := clause.Arg("key", "key to read").Required().String()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		return withPage(ctx, cfg, args, func(p *ledger.Page) error {
			c, err := headCommit(ctx, p)
			if err != nil {
				return err
			}
			e, err := p.Storage.GetEntry(ctx, c, []byte(*key))
			if err != nil {
				return err
			}
			v, err := p.Storage.GetObject(ctx, e.ObjectID, pagestorage.Local)
			if errors.Is(err, pagestorage.ErrNotFound) {
				return errors.Errorf("value of %q is lazy and not on this device; run serve to fetch it", *key)
			} else if err != nil {
				return err
			}
			_, err = out.Write(v)
			return err
		})
	}
}

func lsCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("ls", "Lists the entries of the newest head")
	args := addPageArgs(clause)
	from := clause.Flag("from", "first key to list").String()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		return withPage(ctx, cfg, args, func(p *ledger.Page) error {
			c, err := headCommit(ctx, p)
			if err != nil {
				return err
			}
			return p.Storage.ForEachEntry(ctx, c, []byte(*from), func(e tree.Entry) error {
				_, err := fmt.Fprintf(out, "%s\t%s\t%s\n", e.Key, e.Priority, e.ObjectID)
				return err
			})
		})
	}
}

func putCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("put", "Commits a value for a key on top of the newest head")
	args := addPageArgs(clause)
	key := clause.Arg("key", "key to write").Required().String()
	value := clause.Arg("value", "value to write; read from stdin if omitted").String()
	lazy := clause.Flag("lazy", "other devices fetch the value only when it is read").Bool()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		data := []byte(*value)
		if *value == "" {
			var err error
			if data, err = io.ReadAll(os.Stdin); err != nil {
				return err
			}
		}
		priority := tree.Eager
		if *lazy {
			priority = tree.Lazy
		}
		return withPage(ctx, cfg, args, func(p *ledger.Page) error {
			c, err := edit(ctx, p, func(j *pagestorage.Journal) error {
				id, err := p.Storage.AddObjectFromLocal(ctx, data)
				if err != nil {
					return err
				}
				if err := j.Put(ctx, []byte(*key), id, priority); err != nil {
					p.Storage.ReleaseObject(id)
					return err
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, formatCommit(c))
			return nil
		})
	}
}

func deleteCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("delete", "Commits the removal of a key on top of the newest head")
	args := addPageArgs(clause)
	key := clause.Arg("key", "key to remove").Required().String()

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		return withPage(ctx, cfg, args, func(p *ledger.Page) error {
			c, err := edit(ctx, p, func(j *pagestorage.Journal) error {
				return j.Delete([]byte(*key))
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, formatCommit(c))
			return nil
		})
	}
}

func edit(ctx context.Context, p *ledger.Page, fn func(*pagestorage.Journal) error) (*datas.Commit, error) {
	j, err := p.Storage.StartTransaction(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(j); err != nil {
		j.Rollback()
		return nil, err
	}
	c, err := j.Commit(ctx)
	if err != nil {
		j.Rollback()
		return nil, err
	}
	return c, nil
}

func gcCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("gc", "Deletes the objects of a page no commit reaches")
	args := addPageArgs(clause)

	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		return withPage(ctx, cfg, args, func(p *ledger.Page) error {
			n, err := p.Storage.CollectGarbage(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted %s objects\n", humanize.Comma(int64(n)))
			return nil
		})
	}
}
