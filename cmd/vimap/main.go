package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saksenad/vimap"
	"github.com/saksenad/vimap/server"
	"github.com/saksenad/vimap/source"
)

var sourceType = flag.String("source_type", "fs", "input source type (fs, http, s3, gcs, git)")

var path = flag.String("path", "", "path to the input file")

var URL = flag.String("url", "", "url of the input")

var bucket = flag.String("bucket", "", "bucket holding the input object")

var object = flag.String("object", "", "object key within the bucket")

var region = flag.String("region", "", "aws region of the bucket")

var branch = flag.String("branch", "", "git branch to read from")

var apiKey = flag.String("api_key", "", "api key sent as X-API-Key when fetching over http")

var op = flag.String("op", "length", "operation to run per record (length, upper, sha256)")

var numWorkers = flag.Int("num_workers", 0, "number of workers (0 = number of CPUs)")

var chunkSize = flag.Int("chunk_size", 0, "records per task (0 = no chunking)")

var ordered = flag.Bool("ordered", true, "emit outputs in input order")

var progressAddr = flag.String("progress_addr", "", "optional address to serve pool progress on")

func main() {
	flag.Parse()

	src, err := newSource()
	if err != nil {
		logrus.WithError(err).Fatal("error creating source")
	}

	fn, err := newOp(*op)
	if err != nil {
		logrus.WithError(err).Fatal("unknown op")
	}

	opts := []vimap.Option{}
	if *numWorkers > 0 {
		opts = append(opts, vimap.NumWorkers(*numWorkers))
	}
	if *chunkSize > 0 {
		opts = append(opts, vimap.ChunkSize(*chunkSize))
	}
	if *ordered {
		opts = append(opts, vimap.Ordered())
	}

	ctx := context.Background()
	pool, err := vimap.ForkFunc(ctx, fn, opts...)
	if err != nil {
		logrus.WithError(err).Fatal("error forking pool")
	}
	defer pool.Close()

	if *progressAddr != "" {
		srv := server.NewServer(ctx, map[string]*vimap.Pool{"main": pool}, 5*time.Second)
		srv.AuthKey = *apiKey
		defer srv.Stop()
		go srv.Start(*progressAddr)
	}

	stream := pool.Imap(source.Records(ctx, src))
	for out := range stream.Outputs() {
		fmt.Println(out)
	}
	if err := stream.Err(); err != nil {
		logrus.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

// newSource builds the input source selected by -source_type.
func newSource() (source.Source, error) {
	switch *sourceType {
	case "fs":
		if *path == "" {
			logrus.Fatal("path is required")
		}
		return source.NewFileSource(*path)
	case "http":
		if *URL == "" {
			logrus.Fatal("url is required")
		}
		src, err := source.NewWebSource(*URL)
		if err != nil {
			return nil, err
		}
		if *apiKey != "" {
			src.(*source.WebSource).APIKey = *apiKey
		}
		return src, nil
	case "s3":
		if *bucket == "" || *object == "" {
			logrus.Fatal("bucket and object are required")
		}
		return source.NewS3Source(*bucket, *object, *region)
	case "gcs":
		if *bucket == "" || *object == "" {
			logrus.Fatal("bucket and object are required")
		}
		return source.NewGCSSource(*bucket, *object)
	case "git":
		if *URL == "" || *path == "" {
			logrus.Fatal("url and path are required")
		}
		src, err := source.NewGitSource(*URL, *path)
		if err != nil {
			return nil, err
		}
		if *branch != "" {
			src.(*source.GitSource).Branch = *branch
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", *sourceType)
	}
}

// newOp returns the builtin per-record operation selected by -op.
func newOp(name string) (vimap.WorkerFunc, error) {
	switch name {
	case "length":
		return func(_ context.Context, input interface{}) (interface{}, error) {
			return len(input.(string)), nil
		}, nil
	case "upper":
		return func(_ context.Context, input interface{}) (interface{}, error) {
			return strings.ToUpper(input.(string)), nil
		}, nil
	case "sha256":
		return func(_ context.Context, input interface{}) (interface{}, error) {
			sum := sha256.Sum256([]byte(input.(string)))
			return hex.EncodeToString(sum[:]), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", name)
	}
}
