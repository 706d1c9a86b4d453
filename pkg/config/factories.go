package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/pkg/blob"
	blobFs "github.com/atticfs/attic/pkg/blob/fs"
	blobMemory "github.com/atticfs/attic/pkg/blob/memory"
	blobS3 "github.com/atticfs/attic/pkg/blob/s3"
	"github.com/atticfs/attic/pkg/identity"
	"github.com/atticfs/attic/pkg/tree"
	treeBadger "github.com/atticfs/attic/pkg/tree/badger"
	treeMemory "github.com/atticfs/attic/pkg/tree/memory"
)

// CreateTreeStore creates a tree store based on configuration.
//
// Supported types:
//   - "memory": in-process maps, ephemeral
//   - "badger": BadgerDB, persistent
func CreateTreeStore(ctx context.Context, cfg *TreeConfig, authz tree.Authorizer) (tree.Store, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return treeMemory.NewMemoryStore(authz), nil
	case "badger":
		return createBadgerTreeStore(ctx, cfg.Badger, authz)
	default:
		return nil, fmt.Errorf("unknown tree store type: %q (supported: memory, badger)", cfg.Type)
	}
}

func createBadgerTreeStore(ctx context.Context, options map[string]any, authz tree.Authorizer) (tree.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type BadgerTreeStoreOptions struct {
		DBPath   string `mapstructure:"db_path"`
		InMemory bool   `mapstructure:"in_memory"`
	}

	var storeOpts BadgerTreeStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger tree store options: %w", err)
	}

	if storeOpts.DBPath == "" && !storeOpts.InMemory {
		return nil, fmt.Errorf("badger tree store: db_path is required")
	}

	store, err := treeBadger.NewBadgerStore(ctx, treeBadger.BadgerStoreConfig{
		DBPath:   storeOpts.DBPath,
		InMemory: storeOpts.InMemory,
		Authz:    authz,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger tree store: %w", err)
	}
	return store, nil
}

// CreateBlobStore creates a blob store based on configuration.
//
// Supported types:
//   - "memory": in-process, ephemeral
//   - "filesystem": local directory
//   - "s3": Amazon S3 or compatible storage
func CreateBlobStore(ctx context.Context, cfg *BlobConfig) (blob.Store, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return blobMemory.NewMemoryStore(), nil
	case "filesystem":
		return createFilesystemBlobStore(ctx, cfg.Filesystem)
	case "s3":
		return createS3BlobStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q (supported: memory, filesystem, s3)", cfg.Type)
	}
}

func createFilesystemBlobStore(ctx context.Context, options map[string]any) (blob.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type FilesystemBlobStoreOptions struct {
		Path string `mapstructure:"path"`
	}

	var storeOpts FilesystemBlobStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem blob store options: %w", err)
	}

	if storeOpts.Path == "" {
		return nil, fmt.Errorf("filesystem blob store: path is required")
	}

	store, err := blobFs.NewFSStore(storeOpts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem blob store: %w", err)
	}
	return store, nil
}

func createS3BlobStore(ctx context.Context, options map[string]any) (blob.Store, error) {
	type S3BlobStoreOptions struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeOpts S3BlobStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 blob store options: %w", err)
	}

	if storeOpts.Bucket == "" {
		return nil, fmt.Errorf("S3 blob store: bucket is required")
	}
	if storeOpts.Region == "" {
		return nil, fmt.Errorf("S3 blob store: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(storeOpts.Region))

	// Custom endpoint support for MinIO, Localstack, etc.
	if storeOpts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeOpts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if storeOpts.AccessKeyID != "" && storeOpts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeOpts.AccessKeyID,
			storeOpts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeOpts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if storeOpts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	store, err := blobS3.NewS3Store(ctx, blobS3.S3StoreConfig{
		Client:    client,
		Bucket:    storeOpts.Bucket,
		KeyPrefix: storeOpts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}

	logger.Info("S3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		storeOpts.Bucket, storeOpts.Region, storeOpts.KeyPrefix)

	return store, nil
}

// SeedIdentities registers the configured users and groups and creates a
// root directory for each user.
//
// Seeding runs against a fresh registry at startup. With a persistent tree
// store a user's root may already exist from a previous run; it is found by
// name and the user is restored under the root's stored owner id, so the
// owner keeps access to everything created in earlier runs.
func SeedIdentities(ctx context.Context, cfg *SeedConfig, reg *identity.Registry, store tree.Store) error {
	byName := make(map[string]*identity.User, len(cfg.Users))

	roots, err := existingRoots(ctx, store)
	if err != nil {
		return err
	}

	for i, userCfg := range cfg.Users {
		var user *identity.User
		var rootID tree.ID

		if root, ok := roots[userCfg.Name]; ok {
			user, err = reg.RestoreUser(ctx, userCfg.Name, root.Owner)
			if err != nil {
				return fmt.Errorf("failed to restore user[%d] %q: %w", i, userCfg.Name, err)
			}
			rootID = root.ID
		} else {
			user, err = reg.AddUser(ctx, userCfg.Name)
			if err != nil {
				return fmt.Errorf("failed to seed user[%d] %q: %w", i, userCfg.Name, err)
			}
			root, err := store.CreateRoot(ctx, user.Name, user.ID)
			if err != nil {
				return fmt.Errorf("failed to create root for user %q: %w", user.Name, err)
			}
			rootID = root.ID
		}

		if err := reg.SetRootDir(ctx, user.ID, rootID); err != nil {
			return fmt.Errorf("failed to link root for user %q: %w", user.Name, err)
		}
		user.RootDir = rootID
		byName[user.Name] = user

		logger.Info("Seeded user %q id=%s root=%s", user.Name, user.ID, rootID)
	}

	for i, groupCfg := range cfg.Groups {
		group, err := reg.AddGroup(ctx, groupCfg.Name)
		if err != nil {
			return fmt.Errorf("failed to seed group[%d] %q: %w", i, groupCfg.Name, err)
		}
		for _, memberName := range groupCfg.Members {
			member, ok := byName[memberName]
			if !ok {
				return fmt.Errorf("group %q: member %q is not a seeded user", groupCfg.Name, memberName)
			}
			if _, err := reg.AddMember(ctx, group.ID, member.ID); err != nil {
				return fmt.Errorf("group %q: failed to add member %q: %w", groupCfg.Name, memberName, err)
			}
		}

		logger.Info("Seeded group %q id=%s members=%d", group.Name, group.ID, len(groupCfg.Members))
	}

	return nil
}

// existingRoots returns the persistent store's root directories by name.
func existingRoots(ctx context.Context, store tree.Store) (map[string]*tree.Directory, error) {
	lister, ok := store.(tree.RootLister)
	if !ok {
		return map[string]*tree.Directory{}, nil
	}

	roots, err := lister.Roots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list root directories: %w", err)
	}

	byName := make(map[string]*tree.Directory, len(roots))
	for _, root := range roots {
		byName[root.Name] = root
	}
	return byName, nil
}
