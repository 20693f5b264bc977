// Package secrets resolves the JWT signing key from configuration or AWS
// SSM Parameter Store.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Source returns a secret value.
type Source interface {
	Secret(ctx context.Context) ([]byte, error)
}

// Static is a secret supplied directly, e.g. from the environment.
type Static string

func (s Static) Secret(context.Context) ([]byte, error) {
	v := strings.TrimSpace(string(s))
	if v == "" {
		return nil, xerrors.New("static secret is empty")
	}
	return []byte(v), nil
}

type SSMGetAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type SSMOptions struct {
	Logger    log.Logger
	Param     string
	AWSConfig *aws.Config
	Client    SSMGetAPI
}

// SSMSource reads a SecureString parameter.
type SSMSource struct {
	param  string
	client SSMGetAPI
	logger log.Logger
}

func NewSSMSource(ctx context.Context, opts SSMOptions) (*SSMSource, error) {
	if opts.Param == "" {
		return nil, xerrors.New("SSM parameter name is required")
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
		client = ssm.NewFromConfig(awsCfg)
	}
	return &SSMSource{param: opts.Param, client: client, logger: opts.Logger}, nil
}

func (s *SSMSource) Secret(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get SSM parameter %s", s.param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("SSM parameter %s has no value", s.param)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return nil, xerrors.Newf("SSM parameter %s is empty", s.param)
	}
	s.logger.Info(ctx, "loaded secret from SSM", "param", s.param, "version", out.Parameter.Version)
	return []byte(v), nil
}

// Resolve prefers an inline secret and falls back to the SSM parameter.
func Resolve(ctx context.Context, inline, ssmParam string, logger log.Logger) ([]byte, error) {
	if inline != "" {
		return Static(inline).Secret(ctx)
	}
	if ssmParam == "" {
		return nil, xerrors.New("no JWT secret configured: set jwt-secret or jwt-secret-ssm-param")
	}
	src, err := NewSSMSource(ctx, SSMOptions{Logger: logger, Param: ssmParam})
	if err != nil {
		return nil, err
	}
	return src.Secret(ctx)
}
