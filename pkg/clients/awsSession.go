// Package clients builds the AWS sessions shared by the resolvers and the
// publisher.
package clients

import (
	"github.com/aws/aws-sdk-go/aws"
	awscreds "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"

	"github.com/vydev/pipeline-set-version/pkg/credentialProvider"
)

// NewSession creates a session using the ambient credential chain.
func NewSession(region string) (*session.Session, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}
	return sess, nil
}

// NewSessionWithCredentials creates a session bound to temporary credentials
// from a role assumption. Nil credentials fall back to the ambient chain.
func NewSessionWithCredentials(region string, creds *credentialProvider.Credentials) (*session.Session, error) {
	if creds == nil {
		return NewSession(region)
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: awscreds.NewStaticCredentials(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session with assumed-role credentials")
	}
	return sess, nil
}
