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

package httpcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/store/cloud"
)

const defaultPollInterval = time.Second

type Options struct {
	Client       *http.Client
	PollInterval time.Duration
	Log          *logrus.Entry
}

// Provider is a cloud.Provider talking to a Server.
type Provider struct {
	base string
	opts Options
}

var _ cloud.Provider = (*Provider)(nil)

func NewProvider(baseURL string, opts Options) *Provider {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Provider{base: strings.TrimSuffix(baseURL, "/"), opts: opts}
}

func (p *Provider) GetPageCloud(ctx context.Context, namespace, pageID string) (cloud.PageCloud, error) {
	if namespace == "" || pageID == "" {
		return nil, errors.New("namespace and page id are required")
	}
	return &PageClient{
		root: fmt.Sprintf("%s/pages/%s/%s", p.base, url.PathEscape(namespace), url.PathEscape(pageID)),
		opts: p.opts,
		log:  p.opts.Log.WithFields(logrus.Fields{"ns": namespace, "page": pageID}),
	}, nil
}

// PageClient is the cloud of one page, reached over HTTP.
type PageClient struct {
	root string
	opts Options
	log  *logrus.Entry
}

var _ cloud.PageCloud = (*PageClient)(nil)

func (c *PageClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequest(method, c.root+path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.opts.Client.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(cloud.ErrNetwork, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(cloud.ErrNetwork, "%s %s: %v", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(cloud.ErrNotFound, "%s %s", method, path)
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(cloud.ErrNetwork, "%s %s: %s", method, path, resp.Status)
	case resp.StatusCode >= 400:
		return nil, errors.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *PageClient) AddCommits(ctx context.Context, commits []cloud.Commit) error {
	if len(commits) == 0 {
		return nil
	}
	data, err := json.Marshal(commits)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/commits", bytes.NewReader(data))
	return err
}

func (c *PageClient) GetCommits(ctx context.Context, after cloud.PositionToken) ([]cloud.Commit, cloud.PositionToken, error) {
	path := "/commits"
	if after != "" {
		path += "?after=" + url.QueryEscape(string(after))
	}
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, after, err
	}
	var res commitList
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, after, errors.Wrap(err, "decoding commits")
	}
	if len(res.Commits) == 0 {
		return nil, after, nil
	}
	return res.Commits, cloud.PositionToken(res.Position), nil
}

func (c *PageClient) AddObject(ctx context.Context, name string, data []byte) error {
	_, err := c.do(ctx, http.MethodPut, "/objects/"+url.PathEscape(name), bytes.NewReader(data))
	return err
}

func (c *PageClient) GetObject(ctx context.Context, name string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/objects/"+url.PathEscape(name), nil)
}

// SetWatcher polls the server for new commits. Poll failures are reported
// to |w| and retried with a growing delay.
func (c *PageClient) SetWatcher(after cloud.PositionToken, w cloud.Watcher) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		b := &backoff.Backoff{
			Min:    c.opts.PollInterval,
			Max:    30 * c.opts.PollInterval,
			Factor: 2,
			Jitter: true,
		}
		pos := after
		for {
			delay := c.opts.PollInterval
			commits, next, err := c.GetCommits(ctx, pos)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.log.WithError(err).Debug("polling commits")
				w.OnError(err)
				delay = b.Duration()
			} else {
				b.Reset()
				if len(commits) > 0 {
					pos = next
					w.OnNewCommits(commits, next)
				}
			}

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}()
	return cancel
}
