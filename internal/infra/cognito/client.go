package cognito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/infra/config"
)

// ErrRefreshRejected indicates the provider refused the refresh-token exchange.
var ErrRefreshRejected = errors.New("cognito: refresh token rejected")

// Client implements the identity-provider ports against AWS Cognito.
type Client struct {
	api        *cip.Client
	userPoolID string
	clientID   string
	logger     *zap.Logger
}

// NewClient builds a Cognito client using the ambient AWS credential chain.
func NewClient(ctx context.Context, cfg config.CognitoSettings, logger *zap.Logger) (*Client, error) {
	if cfg.UserPoolID == "" {
		return nil, fmt.Errorf("cognito user pool id is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Client{
		api:        cip.NewFromConfig(awsCfg),
		userPoolID: cfg.UserPoolID,
		clientID:   cfg.AppClientID,
		logger:     logger,
	}, nil
}

// Refresh exchanges a refresh token through the REFRESH_TOKEN_AUTH flow.
// Cognito does not rotate refresh tokens, so the returned set usually omits
// one; callers keep the token they already hold.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	if refreshToken == "" {
		return nil, ErrRefreshRejected
	}

	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(c.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		c.logger.Warn("cognito refresh exchange failed", zap.Error(err))
		return nil, ErrRefreshRejected
	}

	result := out.AuthenticationResult
	if result == nil || result.AccessToken == nil {
		return nil, ErrRefreshRejected
	}

	tokens := &domain.TokenSet{
		AccessToken: aws.ToString(result.AccessToken),
		IDToken:     aws.ToString(result.IdToken),
		TokenType:   aws.ToString(result.TokenType),
		ExpiresIn:   int(result.ExpiresIn),
	}
	if result.RefreshToken != nil {
		tokens.RefreshToken = aws.ToString(result.RefreshToken)
	}

	return tokens, nil
}

// ListUsers pages through the pool's directory.
func (c *Client) ListUsers(ctx context.Context, limit int32, paginationToken, filter string) ([]port.DirectoryUser, string, error) {
	input := &cip.ListUsersInput{
		UserPoolId: aws.String(c.userPoolID),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}
	if paginationToken != "" {
		input.PaginationToken = aws.String(paginationToken)
	}
	if filter != "" {
		input.Filter = aws.String(filter)
	}

	out, err := c.api.ListUsers(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("cognito list users: %w", err)
	}

	users := make([]port.DirectoryUser, 0, len(out.Users))
	for _, u := range out.Users {
		users = append(users, directoryUser(aws.ToString(u.Username), string(u.UserStatus), u.Enabled, u.UserCreateDate, u.Attributes))
	}

	return users, aws.ToString(out.PaginationToken), nil
}

// GetUser fetches a single directory record by username.
func (c *Client) GetUser(ctx context.Context, username string) (*port.DirectoryUser, error) {
	out, err := c.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return nil, directoryErr("cognito get user", err)
	}

	user := directoryUser(aws.ToString(out.Username), string(out.UserStatus), out.Enabled, out.UserCreateDate, out.UserAttributes)
	return &user, nil
}

// UpdateUserAttributes performs an administrative attribute update.
func (c *Client) UpdateUserAttributes(ctx context.Context, username string, attributes map[string]string) error {
	if _, err := c.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(c.userPoolID),
		Username:       aws.String(username),
		UserAttributes: attributeList(attributes),
	}); err != nil {
		return directoryErr("cognito update user attributes", err)
	}
	return nil
}

// ForcePasswordReset forces the user into a reset-required state.
func (c *Client) ForcePasswordReset(ctx context.Context, username string) error {
	if _, err := c.api.AdminResetUserPassword(ctx, &cip.AdminResetUserPasswordInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(username),
	}); err != nil {
		return directoryErr("cognito reset password", err)
	}
	return nil
}

// DeactivateUser disables sign-in for the user.
func (c *Client) DeactivateUser(ctx context.Context, username string) error {
	if _, err := c.api.AdminDisableUser(ctx, &cip.AdminDisableUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(username),
	}); err != nil {
		return directoryErr("cognito disable user", err)
	}
	return nil
}

// ActivateUser re-enables sign-in for the user.
func (c *Client) ActivateUser(ctx context.Context, username string) error {
	if _, err := c.api.AdminEnableUser(ctx, &cip.AdminEnableUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(username),
	}); err != nil {
		return directoryErr("cognito enable user", err)
	}
	return nil
}

// DeleteUser permanently removes the user from the pool.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	if _, err := c.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(username),
	}); err != nil {
		return directoryErr("cognito delete user", err)
	}
	return nil
}

// UpdateProfile updates attributes through the user's own access token, the
// self-service profile path.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, attributes map[string]string) error {
	if _, err := c.api.UpdateUserAttributes(ctx, &cip.UpdateUserAttributesInput{
		AccessToken:    aws.String(accessToken),
		UserAttributes: attributeList(attributes),
	}); err != nil {
		return fmt.Errorf("cognito self update attributes: %w", err)
	}
	return nil
}

// GetProfile fetches the user's own profile through their access token.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (map[string]string, error) {
	out, err := c.api.GetUser(ctx, &cip.GetUserInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return nil, fmt.Errorf("cognito get user info: %w", err)
	}

	info := make(map[string]string, len(out.UserAttributes)+1)
	info["username"] = aws.ToString(out.Username)
	for _, attr := range out.UserAttributes {
		info[aws.ToString(attr.Name)] = aws.ToString(attr.Value)
	}
	return info, nil
}

// directoryErr translates provider not-found failures into the port sentinel.
func directoryErr(op string, err error) error {
	var notFound *types.UserNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", op, port.ErrDirectoryUserNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func directoryUser(username, status string, enabled bool, created *time.Time, attrs []types.AttributeType) port.DirectoryUser {
	user := port.DirectoryUser{
		Username:   username,
		Status:     status,
		Enabled:    enabled,
		Attributes: make(map[string]string, len(attrs)),
	}
	if created != nil {
		user.CreatedAt = created.UTC().Format(time.RFC3339)
	}
	for _, attr := range attrs {
		user.Attributes[aws.ToString(attr.Name)] = aws.ToString(attr.Value)
	}
	return user
}

func attributeList(attributes map[string]string) []types.AttributeType {
	list := make([]types.AttributeType, 0, len(attributes))
	for name, value := range attributes {
		list = append(list, types.AttributeType{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}
	return list
}
