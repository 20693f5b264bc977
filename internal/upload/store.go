package upload

import (
	"bytes"
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/pathutil"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Store persists accepted files and returns the object key.
type Store interface {
	Put(ctx context.Context, key string, f File) error
}

type S3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	Logger    log.Logger
	Bucket    string
	Prefix    string
	AWSConfig *aws.Config
	// Client overrides the client built from AWSConfig.
	Client S3PutAPI
}

// S3Store writes gallery files to s3://{bucket}/{prefix}/{key}.
type S3Store struct {
	opts   S3Options
	client S3PutAPI
	logger log.Logger
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("upload bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	client := opts.Client
	if client == nil {
		var awsCfg aws.Config
		var err error
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		client = s3.NewFromConfig(awsCfg)
	}
	return &S3Store{opts: opts, client: client, logger: opts.Logger}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, f File) error {
	k, err := pathutil.JoinKey(s.opts.Prefix, key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(f.Data),
		ContentType:   aws.String(f.ContentType),
		ContentLength: aws.Int64(f.Size),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put S3 object s3://%s/%s", s.opts.Bucket, k)
	}
	s.logger.Info(ctx, "stored upload", "bucket", s.opts.Bucket, "key", k, "bytes", f.Size)
	return nil
}

// MemoryStore keeps files in process, for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string]File
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]File)}
}

func (m *MemoryStore) Put(_ context.Context, key string, f File) error {
	key, err := pathutil.JoinKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.files[key] = f
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(key string) (File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[key]
	return f, ok
}
