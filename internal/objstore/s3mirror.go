// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/loglsm/spacemap/internal/base"
)

// S3MirrorConfig configures S3Mirror.
type S3MirrorConfig struct {
	Bucket string
	Prefix string
	Region string
	// MinMirrorBytes skips mirroring objects smaller than this — the
	// size-based analogue of the original's suffix-based SkipS3Upload,
	// which skipped .log/.dbtmp files outright.
	MinMirrorBytes int64
}

// S3Mirror wraps a base.ObjectStore and best-effort mirrors every
// appended object to S3 as a gzip-compressed blob, keyed by object id.
// It never lets a mirroring failure affect the primary store: mirror
// errors are swallowed after being reported to onMirrorError, since the
// local object store remains the source of truth for Load.
type S3Mirror struct {
	base.ObjectStore
	uploader       *s3manager.Uploader
	client         *s3.S3
	cfg            S3MirrorConfig
	onMirrorError  func(id base.ObjectID, err error)
}

// NewS3Mirror constructs an S3Mirror over store using the given region.
func NewS3Mirror(store base.ObjectStore, cfg S3MirrorConfig, onMirrorError func(base.ObjectID, error)) (*S3Mirror, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errors.Wrapf(err, "logsm: creating S3 session")
	}
	if onMirrorError == nil {
		onMirrorError = func(base.ObjectID, error) {}
	}
	return &S3Mirror{
		ObjectStore:   store,
		uploader:      s3manager.NewUploader(sess),
		client:        s3.New(sess),
		cfg:           cfg,
		onMirrorError: onMirrorError,
	}, nil
}

// Append writes through to the wrapped store, then best-effort mirrors
// the object's current full contents to S3 — mirroring the original
// CloudFile's pattern of re-uploading on every sync-like call rather
// than waiting for a single terminal close.
func (s *S3Mirror) Append(id base.ObjectID, p []byte) error {
	if err := s.ObjectStore.Append(id, p); err != nil {
		return err
	}
	if err := s.mirror(id); err != nil {
		s.onMirrorError(id, err)
	}
	return nil
}

// Remove deletes the local object and best-effort deletes its mirror.
func (s *S3Mirror) Remove(id base.ObjectID) error {
	if _, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(id)),
	}); err != nil {
		s.onMirrorError(id, errors.Wrapf(err, "logsm: deleting S3 mirror"))
	}
	return s.ObjectStore.Remove(id)
}

func (s *S3Mirror) key(id base.ObjectID) string {
	return fmt.Sprintf("%s/lsm-%d.gz", s.cfg.Prefix, id)
}

func (s *S3Mirror) mirror(id base.ObjectID) error {
	length, err := s.ObjectStore.Length(id)
	if err != nil {
		return err
	}
	if length < s.cfg.MinMirrorBytes {
		return nil
	}
	r, err := s.ObjectStore.Reader(id)
	if err != nil {
		return err
	}
	defer r.Close()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := io.Copy(gw, r); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}

	_, err = s.uploader.UploadWithContext(context.Background(), &s3manager.UploadInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(id)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	return err
}
