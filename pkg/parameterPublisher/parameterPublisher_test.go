package parameterPublisher

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/versions"
)

type fakeSSMClient struct {
	ssmiface.SSMAPI
	store    map[string]string
	failing  map[string]bool
	putOrder []string
}

func (f *fakeSSMClient) PutParameterWithContext(ctx aws.Context, input *ssm.PutParameterInput, opts ...request.Option) (*ssm.PutParameterOutput, error) {
	name := aws.StringValue(input.Name)
	f.putOrder = append(f.putOrder, name)
	if f.failing[name] {
		return nil, awserr.New("InternalServerError", "boom", nil)
	}
	if f.store == nil {
		f.store = map[string]string{}
	}
	f.store[name] = aws.StringValue(input.Value)
	return &ssm.PutParameterOutput{}, nil
}

func Test_ValidateSSMPrefix(t *testing.T) {
	t.Run("Should reject an empty prefix", func(t *testing.T) {
		assert.Error(t, ValidateSSMPrefix(""))
		assert.Error(t, ValidateSSMPrefix("/"))
	})
	t.Run("Should reject reserved namespaces", func(t *testing.T) {
		assert.Error(t, ValidateSSMPrefix("aws-foo"))
		assert.Error(t, ValidateSSMPrefix("/aws-foo"))
		assert.Error(t, ValidateSSMPrefix("AWS"))
		assert.Error(t, ValidateSSMPrefix("ssm-bar"))
	})
	t.Run("Should accept a plain namespace", func(t *testing.T) {
		assert.NoError(t, ValidateSSMPrefix("trafficinfo"))
		assert.NoError(t, ValidateSSMPrefix("/trafficinfo/test"))
	})
}

func Test_Publisher(t *testing.T) {
	ctx := context.Background()

	t.Run("Should write one string parameter per resolved version", func(t *testing.T) {
		client := &fakeSSMClient{}
		publisher := NewPublisher(client, zap.NewNop())

		err := publisher.Publish(ctx, versions.ResolvedVersions{
			"svc-a": "aaa1111",
			"svc-b": "bbb2222",
		}, "trafficinfo")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"/trafficinfo/svc-a": "aaa1111",
			"/trafficinfo/svc-b": "bbb2222",
		}, client.store)
	})

	t.Run("Should be idempotent across repeated publishes", func(t *testing.T) {
		client := &fakeSSMClient{}
		publisher := NewPublisher(client, zap.NewNop())
		resolved := versions.ResolvedVersions{"svc-a": "aaa1111"}

		require.NoError(t, publisher.Publish(ctx, resolved, "trafficinfo"))
		require.NoError(t, publisher.Publish(ctx, resolved, "trafficinfo"))
		assert.Equal(t, "aaa1111", client.store["/trafficinfo/svc-a"])
	})

	t.Run("Should fail before any write on an invalid prefix", func(t *testing.T) {
		for _, prefix := range []string{"", "aws-foo"} {
			client := &fakeSSMClient{}
			publisher := NewPublisher(client, zap.NewNop())

			err := publisher.Publish(ctx, versions.ResolvedVersions{"svc-a": "aaa1111"}, prefix)
			require.Error(t, err)
			assert.Empty(t, client.putOrder)
		}
	})

	t.Run("Should attempt remaining names when one write fails", func(t *testing.T) {
		client := &fakeSSMClient{failing: map[string]bool{"/trafficinfo/svc-b": true}}
		publisher := NewPublisher(client, zap.NewNop())

		err := publisher.Publish(ctx, versions.ResolvedVersions{
			"svc-a": "aaa1111",
			"svc-b": "bbb2222",
			"svc-c": "ccc3333",
		}, "trafficinfo")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "svc-b")
		assert.NotContains(t, err.Error(), "svc-a")
		assert.Equal(t, "aaa1111", client.store["/trafficinfo/svc-a"])
		assert.Equal(t, "ccc3333", client.store["/trafficinfo/svc-c"])
	})

	t.Run("Should write names in deterministic order", func(t *testing.T) {
		client := &fakeSSMClient{}
		publisher := NewPublisher(client, zap.NewNop())

		err := publisher.Publish(ctx, versions.ResolvedVersions{
			"svc-c": "3", "svc-a": "1", "svc-b": "2",
		}, "trafficinfo")
		require.NoError(t, err)
		assert.Equal(t, []string{"/trafficinfo/svc-a", "/trafficinfo/svc-b", "/trafficinfo/svc-c"}, client.putOrder)
	})

	t.Run("Should trim surrounding slashes from the prefix", func(t *testing.T) {
		client := &fakeSSMClient{}
		publisher := NewPublisher(client, zap.NewNop())

		err := publisher.Publish(ctx, versions.ResolvedVersions{"svc-a": "aaa1111"}, "/trafficinfo/")
		require.NoError(t, err)
		assert.Equal(t, "aaa1111", client.store["/trafficinfo/svc-a"])
	})
}
