package aws

import (
	"context"
	"subuk/gamemango/compute"
	"subuk/gamemango/util"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	aws_session "github.com/aws/aws-sdk-go/aws/session"
	aws_ec2 "github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/rs/zerolog"
)

const errCodeInstanceNotFound = "InvalidInstanceID.NotFound"

type InstanceRepository struct {
	ec2    ec2iface.EC2API
	region string
	logger zerolog.Logger
}

// New creates a repository bound to one region with static credentials.
func New(region, accessKey, secretKey string, logger zerolog.Logger) (*InstanceRepository, error) {
	awsSession, err := aws_session.NewSessionWithOptions(aws_session.Options{
		Config: aws.Config{
			Region:      aws.String(region),
			Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
		},
	})
	if err != nil {
		return nil, util.NewError(err, "cannot create aws session for region %s", region)
	}
	return NewWithClient(aws_ec2.New(awsSession), region, logger), nil
}

func NewWithClient(client ec2iface.EC2API, region string, logger zerolog.Logger) *InstanceRepository {
	return &InstanceRepository{
		ec2:    client,
		region: region,
		logger: logger.With().Str("component", "aws").Str("region", region).Logger(),
	}
}

func (repo *InstanceRepository) Get(ctx context.Context, id string) (*compute.Instance, error) {
	response, err := repo.ec2.DescribeInstancesWithContext(ctx, &aws_ec2.DescribeInstancesInput{
		InstanceIds: aws.StringSlice([]string{id}),
	})
	if err != nil {
		// EC2 reports an unknown id as an error rather than an empty
		// reservation list; both mean the binding points nowhere
		if isNotFound(err) {
			return nil, &compute.LookupError{InstanceId: id}
		}
		return nil, util.NewError(err, "cannot describe instance %s", id)
	}
	if len(response.Reservations) == 0 || len(response.Reservations[0].Instances) == 0 {
		return nil, &compute.LookupError{InstanceId: id}
	}
	awsInstance := response.Reservations[0].Instances[0]
	instance := &compute.Instance{
		Id:              aws.StringValue(awsInstance.InstanceId),
		PublicIpAddress: aws.StringValue(awsInstance.PublicIpAddress),
		State:           compute.InstanceState(-1),
	}
	if awsInstance.State != nil && awsInstance.State.Code != nil {
		// high byte is reserved for internal use
		instance.State = compute.InstanceState(aws.Int64Value(awsInstance.State.Code) & 0xff)
	}
	repo.logger.Debug().Str("instance", id).Str("state", instance.State.String()).Msg("instance described")
	return instance, nil
}

func (repo *InstanceRepository) Start(ctx context.Context, id string) error {
	_, err := repo.ec2.StartInstancesWithContext(ctx, &aws_ec2.StartInstancesInput{
		InstanceIds: aws.StringSlice([]string{id}),
	})
	if err != nil {
		if isNotFound(err) {
			return &compute.LookupError{InstanceId: id}
		}
		return util.NewError(err, "cannot start instance %s", id)
	}
	repo.logger.Info().Str("instance", id).Msg("instance start requested")
	return nil
}

func (repo *InstanceRepository) Stop(ctx context.Context, id string) error {
	_, err := repo.ec2.StopInstancesWithContext(ctx, &aws_ec2.StopInstancesInput{
		InstanceIds: aws.StringSlice([]string{id}),
	})
	if err != nil {
		if isNotFound(err) {
			return &compute.LookupError{InstanceId: id}
		}
		return util.NewError(err, "cannot stop instance %s", id)
	}
	repo.logger.Info().Str("instance", id).Msg("instance stop requested")
	return nil
}

func isNotFound(err error) bool {
	castedErr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	return castedErr.Code() == errCodeInstanceNotFound
}
