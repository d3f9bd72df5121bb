package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"donationledger/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	cognitotypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// CognitoAPI is the part of the Cognito client the authenticator calls.
type CognitoAPI interface {
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
}

type Session struct {
	AccessToken string
	ExpiresIn   time.Duration
}

type Authenticator struct {
	client   CognitoAPI
	clientID string
}

func NewAuthenticator(client CognitoAPI, clientID string) *Authenticator {
	return &Authenticator{client: client, clientID: clientID}
}

// Login exchanges an email and password for an access token.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, types.NewValidationError("email", "email and password are required")
	}

	input := &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: cognitotypes.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(a.clientID),
		AuthParameters: map[string]string{
			"USERNAME": email,
			"PASSWORD": password,
		},
	}

	resp, err := a.client.InitiateAuth(ctx, input)
	if err != nil {
		var notAuthorized *cognitotypes.NotAuthorizedException
		var notConfirmed *cognitotypes.UserNotConfirmedException
		var notFound *cognitotypes.UserNotFoundException
		if errors.As(err, &notAuthorized) || errors.As(err, &notConfirmed) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: invalid credentials", types.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("failed to initiate auth: %w: %w", types.ErrUnavailable, err)
	}

	if resp.AuthenticationResult == nil || resp.AuthenticationResult.AccessToken == nil {
		return nil, fmt.Errorf("%w: login requires an additional challenge", types.ErrUnauthenticated)
	}

	return &Session{
		AccessToken: aws.ToString(resp.AuthenticationResult.AccessToken),
		ExpiresIn:   time.Duration(resp.AuthenticationResult.ExpiresIn) * time.Second,
	}, nil
}
