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
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/cloud"
	"github.com/dolthub/ledger/store/db"
)

// ObjectBackend stores the objects a Server receives.
type ObjectBackend interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns cloud.ErrNotFound for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)
}

// DbBackend keeps objects in a db.Db.
type DbBackend struct {
	db db.Db
}

var _ ObjectBackend = DbBackend{}

func NewDbBackend(d db.Db) DbBackend {
	return DbBackend{db: d}
}

func (b DbBackend) Put(ctx context.Context, key string, data []byte) error {
	batch, err := b.db.StartBatch(ctx)
	if err != nil {
		return err
	}
	if err := batch.Put([]byte(objectKeyPrefix+key), data); err != nil {
		return err
	}
	return batch.Execute(ctx)
}

func (b DbBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.db.Get(ctx, []byte(objectKeyPrefix+key))
	if errors.Is(err, db.ErrNotFound) {
		return nil, errors.Wrapf(cloud.ErrNotFound, "object %s", key)
	}
	return data, err
}

type s3Svc interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Backend keeps objects in an S3 bucket.
type S3Backend struct {
	bucket string
	prefix string
	svc    s3Svc
}

var _ ObjectBackend = S3Backend{}

// NewS3Backend returns a backend writing under |prefix| in |bucket|. With
// an empty |awsAuth| credentials come from the environment, otherwise it
// is "KEY:SECRET".
func NewS3Backend(bucket, prefix, region, awsAuth string) (S3Backend, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if awsAuth != "" {
		toks := strings.SplitN(awsAuth, ":", 2)
		if len(toks) != 2 {
			return S3Backend{}, errors.New("aws auth must be KEY:SECRET")
		}
		cfg.Credentials = credentials.NewStaticCredentials(toks[0], toks[1], "")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return S3Backend{}, err
	}
	return S3Backend{bucket: bucket, prefix: prefix, svc: s3.New(sess)}, nil
}

func (b S3Backend) key(k string) *string {
	if b.prefix == "" {
		return aws.String(k)
	}
	return aws.String(b.prefix + "/" + k)
}

func (b S3Backend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (b S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    b.key(key),
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
		return nil, errors.Wrapf(cloud.ErrNotFound, "object %s", key)
	} else if err != nil {
		return nil, err
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}
