package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"donationledger/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	cognitotypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCognito struct {
	input  *cognitoidentityprovider.InitiateAuthInput
	output *cognitoidentityprovider.InitiateAuthOutput
	err    error
}

func (f *fakeCognito) InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error) {
	f.input = params
	return f.output, f.err
}

func TestLogin(t *testing.T) {
	client := &fakeCognito{output: &cognitoidentityprovider.InitiateAuthOutput{
		AuthenticationResult: &cognitotypes.AuthenticationResultType{
			AccessToken: aws.String("access-token"),
			ExpiresIn:   3600,
		},
	}}

	session, err := NewAuthenticator(client, "web-client").Login(context.Background(), "donor@example.org", "hunter22")
	require.NoError(t, err)

	assert.Equal(t, "access-token", session.AccessToken)
	assert.Equal(t, time.Hour, session.ExpiresIn)
	assert.Equal(t, "web-client", aws.ToString(client.input.ClientId))
	assert.Equal(t, cognitotypes.AuthFlowTypeUserPasswordAuth, client.input.AuthFlow)
	assert.Equal(t, "donor@example.org", client.input.AuthParameters["USERNAME"])
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeCognito
		kind   error
	}{
		{"bad password", &fakeCognito{err: &cognitotypes.NotAuthorizedException{}}, types.ErrUnauthenticated},
		{"unconfirmed", &fakeCognito{err: &cognitotypes.UserNotConfirmedException{}}, types.ErrUnauthenticated},
		{"challenge", &fakeCognito{output: &cognitoidentityprovider.InitiateAuthOutput{ChallengeName: cognitotypes.ChallengeNameTypeNewPasswordRequired}}, types.ErrUnauthenticated},
		{"outage", &fakeCognito{err: errors.New("connection reset")}, types.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthenticator(tt.client, "web-client").Login(context.Background(), "donor@example.org", "pw")
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	_, err := NewAuthenticator(&fakeCognito{}, "web-client").Login(context.Background(), "", "")
	assert.ErrorIs(t, err, types.ErrValidation)
}
