package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/flashio/blobstore"
	miniostore "github.com/hupe1980/flashio/blobstore/minio"
	s3store "github.com/hupe1980/flashio/blobstore/s3"
	"github.com/hupe1980/flashio/config"
	"github.com/hupe1980/flashio/image"
	"github.com/hupe1980/flashio/image/ddb"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

func awsConfig(ctx context.Context, sc config.Snapshot) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if sc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(sc.Region))
	}
	if sc.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, "")))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// openStore builds the snapshot store named by the configuration.
func openStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	sc := cfg.Snapshot
	switch sc.Store {
	case "local":
		return blobstore.NewLocalStore(sc.Path), nil
	case "s3":
		awsCfg, err := awsConfig(ctx, sc)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = aws.String(sc.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3store.NewStore(client, sc.Bucket, sc.Prefix), nil
	case "minio":
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: sc.Secure,
			Region: sc.Region,
		})
		if err != nil {
			return nil, err
		}
		return miniostore.NewStore(client, sc.Bucket, sc.Prefix), nil
	}
	return nil, fmt.Errorf("unknown snapshot store %q", sc.Store)
}

// openCatalog returns the DynamoDB catalog named by snapshot.catalog_table.
var openCatalog = func(ctx context.Context, cfg *config.Config) (image.Catalog, error) {
	sc := cfg.Snapshot
	if sc.CatalogTable == "" {
		return nil, errors.New("snapshot.catalog_table is not configured")
	}
	awsCfg, err := awsConfig(ctx, sc)
	if err != nil {
		return nil, err
	}
	return ddb.NewCatalog(dynamodb.NewFromConfig(awsCfg), sc.CatalogTable), nil
}
