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
package cmd

import (
	"github.com/penny-vault/pvfin/backblaze"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheCmd groups commands that manage the on-disk download cache
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the on-disk cache of downloaded datasets",
}

// cachePushCmd uploads the cache to backblaze
var cachePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload cached datasets to a Backblaze B2 bucket",
	Run: func(cmd *cobra.Command, args []string) {
		bucketName := viper.GetString("backblaze.bucket")
		if bucketName == "" {
			log.Fatal().Msg("backblaze.bucket is not configured")
		}

		uploader, err := backblaze.NewUploader(viper.GetString("backblaze.application_id"),
			viper.GetString("backblaze.application_key"), bucketName)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to backblaze")
		}

		cacheDir := viper.GetString("cache.dir")
		numFiles, err := uploader.PushCache(cacheDir, viper.GetString("backblaze.prefix"))
		if err != nil {
			log.Fatal().Err(err).Int("NumUploaded", numFiles).Msg("could not upload cache")
		}

		log.Info().Str("Dir", cacheDir).Str("BucketName", bucketName).Int("NumUploaded", numFiles).Msg("cache uploaded")
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePushCmd)
}
