// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package backblaze

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/gosimple/slug"
	"github.com/kothar/go-backblaze"
	"github.com/penny-vault/pvfin/cache"
	"github.com/rs/zerolog/log"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
)

// Uploader copies files into a single B2 bucket
type Uploader struct {
	bucketName string
	bucket     *backblaze.Bucket
}

// NewUploader authorizes against B2 and looks up the bucket
func NewUploader(keyID, applicationKey, bucketName string) (*Uploader, error) {
	b2, err := backblaze.NewB2(backblaze.Credentials{
		KeyID:          keyID,
		ApplicationKey: applicationKey,
	})
	if err != nil {
		log.Error().Err(err).Str("BucketName", bucketName).Msg("authorize backblaze failed")
		return nil, err
	}

	bucket, err := b2.Bucket(bucketName)
	if err != nil {
		log.Error().Err(err).Str("BucketName", bucketName).Msg("lookup bucket failed")
		return nil, err
	}
	if bucket == nil {
		log.Error().Str("BucketName", bucketName).Msg("bucket does not exist")
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucketName)
	}

	return &Uploader{
		bucketName: bucketName,
		bucket:     bucket,
	}, nil
}

// Upload saves the local file fn in the bucket as outName
func (uploader *Uploader) Upload(fn, outName string) error {
	reader, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer reader.Close()

	metadata := make(map[string]string)

	file, err := uploader.bucket.UploadFile(outName, metadata, reader)
	if err != nil {
		log.Error().Err(err).Str("FileName", outName).Str("BucketName", uploader.bucketName).Msg("save file to backblaze failed")
		return err
	}

	log.Info().Str("FileName", file.Name).Int64("Size", file.ContentLength).Str("ID", file.ID).Msg("uploaded file to backblaze")
	return nil
}

// ObjectName is the bucket path of a cached file: the cache layout below a
// slug of prefix
func ObjectName(prefix, rel string) string {
	folder := slug.Make(prefix)
	if folder == "" {
		folder = "pvfin"
	}
	return path.Join(folder, filepath.ToSlash(rel))
}

// PushCache uploads every cached dataset file below root into the prefix
// folder and returns the number of files uploaded
func (uploader *Uploader) PushCache(root, prefix string) (int, error) {
	files, err := cache.Files(root)
	if err != nil {
		return 0, fmt.Errorf("list cache files: %w", err)
	}

	uploaded := 0
	for _, rel := range files {
		if err := uploader.Upload(filepath.Join(root, rel), ObjectName(prefix, rel)); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	return uploaded, nil
}
