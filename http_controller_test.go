package authflow_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-authflow"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, client *MockIdentityClient) *authflow.AuthController {
	t.Helper()
	auther, _ := newTestAuthenticator(t)
	return authflow.NewAuthController(
		authflow.WithControllerClient(client),
		authflow.WithControllerAuthenticator(auther),
		authflow.WithControllerConfig(newTestConfig()),
	)
}

// allowFlashWrites lets the flash helpers and session store touch the
// context without tripping the mock.
func allowFlashWrites(ctx *MockContext) {
	ctx.On("Cookie", mock.Anything)
	ctx.On("Cookies", mock.Anything).Return("")
	ctx.On("Cookies", mock.Anything, mock.Anything).Return("")
	ctx.On("Locals", mock.Anything).Return(nil)
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil)
	ctx.On("SetHeader", mock.Anything, mock.Anything)
}

func TestNewAuthControllerRequiresCollaborators(t *testing.T) {
	require.Panics(t, func() {
		authflow.NewAuthController()
	})

	require.Panics(t, func() {
		authflow.NewAuthController(
			authflow.WithControllerClient(&MockIdentityClient{}),
		)
	})
}

func TestPasswordResetRequestPayloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"missing email", "", true},
		{"not an address", "not-an-email", true},
		{"valid address", "a@example.com", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := authflow.PasswordResetRequestPayload{Email: tc.email}.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthActionConfirmPayloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload authflow.AuthActionConfirmPayload
		wantErr bool
	}{
		{
			"missing code",
			authflow.AuthActionConfirmPayload{Password: "longenough", ConfirmPassword: "longenough"},
			true,
		},
		{
			"short password",
			authflow.AuthActionConfirmPayload{OobCode: "c", Password: "short", ConfirmPassword: "short"},
			true,
		},
		{
			"confirmation mismatch",
			authflow.AuthActionConfirmPayload{OobCode: "c", Password: "longenough", ConfirmPassword: "different1"},
			true,
		},
		{
			"valid",
			authflow.AuthActionConfirmPayload{OobCode: "c", Password: "longenough", ConfirmPassword: "longenough"},
			false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthActionQueryValidation(t *testing.T) {
	assert.Error(t, authflow.AuthActionQuery{Mode: "bogus", OobCode: "c"}.Validate())
	assert.Error(t, authflow.AuthActionQuery{Mode: "resetPassword"}.Validate())

	for _, mode := range []authflow.ActionMode{
		authflow.ActionModeResetPassword,
		authflow.ActionModeRecoverEmail,
		authflow.ActionModeVerifyEmail,
	} {
		assert.NoError(t, authflow.AuthActionQuery{Mode: string(mode), OobCode: "c"}.Validate())
	}
}

func TestLoginShowRendersWithRedirectTarget(t *testing.T) {
	ctrl := newTestController(t, &MockIdentityClient{})

	ctx := &MockContext{}
	ctx.On("Query", "redirectTo", "").Return("/dashboard")
	ctx.On("Cookies", "__session").Return("")

	var bind router.ViewContext
	ctx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		bind = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.LoginShow(ctx))
	require.NotNil(t, bind)
	assert.Equal(t, "/dashboard", bind["redirect_to"])
}

func TestSessionCreateRejectsUnparseableBody(t *testing.T) {
	ctrl := newTestController(t, &MockIdentityClient{})

	var handled error
	ctrl.ErrorHandler = func(c router.Context, err error) error {
		handled = err
		return nil
	}

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(assert.AnError)

	require.NoError(t, ctrl.SessionCreate(ctx))
	assert.ErrorIs(t, handled, assert.AnError)
}

func TestSessionCreateEstablishesSessionAndRedirects(t *testing.T) {
	ctrl := newTestController(t, &MockIdentityClient{})
	token := mintHS256(t, testSecret, baseClaims(time.Now()))

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		req := args.Get(0).(*authflow.SessionRequest)
		req.IDToken = token
		req.RedirectTo = "/dashboard"
	})
	ctx.On("Context").Return(context.Background())
	ctx.On("Cookie", mock.Anything)
	ctx.On("Redirect", "/dashboard", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, ctrl.SessionCreate(ctx))
	ctx.AssertCalled(t, "Redirect", "/dashboard", []int{http.StatusSeeOther})
}

func TestSessionCreateMissingTokenRendersLogin(t *testing.T) {
	ctrl := newTestController(t, &MockIdentityClient{})

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil)
	ctx.On("Status", http.StatusBadRequest)
	allowFlashWrites(ctx)
	ctx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil)

	require.NoError(t, ctrl.SessionCreate(ctx))
	ctx.AssertCalled(t, "Render", ctrl.Views.Login, mock.Anything)
	ctx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
}

func TestSessionCreateRejectedTokenRendersError(t *testing.T) {
	ctrl := newTestController(t, &MockIdentityClient{})

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		req := args.Get(0).(*authflow.SessionRequest)
		req.IDToken = "garbage"
	})
	ctx.On("Context").Return(context.Background())
	ctx.On("Status", http.StatusUnauthorized)
	allowFlashWrites(ctx)
	ctx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil)

	require.NoError(t, ctrl.SessionCreate(ctx))
	ctx.AssertCalled(t, "Render", ctrl.Views.Login, mock.Anything)
	ctx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
}

func TestPasswordResetPostMasksUnknownAddress(t *testing.T) {
	client := &MockIdentityClient{}
	client.On("SendPasswordResetEmail", mock.Anything, "ghost@example.com").
		Return(authflow.FromProviderCode(authflow.ProviderCodeUserNotFound, "EMAIL_NOT_FOUND"))

	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authflow.PasswordResetRequestPayload)
		payload.Email = "ghost@example.com"
	})
	ctx.On("Context").Return(context.Background())

	var bind router.ViewContext
	ctx.On("Render", ctrl.Views.PasswordReset, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		bind = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.PasswordResetPost(ctx))
	require.NotNil(t, bind)
	assert.Equal(t, true, bind["sent"])
	assert.Nil(t, bind["errors"])
	client.AssertCalled(t, "SendPasswordResetEmail", mock.Anything, "ghost@example.com")
}

func TestPasswordResetPostProviderFailureRendersError(t *testing.T) {
	client := &MockIdentityClient{}
	client.On("SendPasswordResetEmail", mock.Anything, "a@example.com").
		Return(authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, "NETWORK_ERROR"))

	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authflow.PasswordResetRequestPayload)
		payload.Email = "a@example.com"
	})
	ctx.On("Context").Return(context.Background())

	var bind router.ViewContext
	ctx.On("Render", ctrl.Views.PasswordReset, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		bind = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.PasswordResetPost(ctx))
	require.NotNil(t, bind)
	assert.NotNil(t, bind["errors"])
	assert.Nil(t, bind["sent"])
}

func TestPasswordResetPostRejectsInvalidEmail(t *testing.T) {
	client := &MockIdentityClient{}
	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authflow.PasswordResetRequestPayload)
		payload.Email = "not-an-email"
	})
	allowFlashWrites(ctx)
	ctx.On("Render", ctrl.Views.PasswordReset, mock.Anything).Return(nil)

	require.NoError(t, ctrl.PasswordResetPost(ctx))
	client.AssertNotCalled(t, "SendPasswordResetEmail", mock.Anything, mock.Anything)
}

func TestAuthActionShowConsumedVerifyCodeReadsAsSuccess(t *testing.T) {
	client := &MockIdentityClient{}
	client.On("ApplyActionCode", mock.Anything, "stale-code").
		Return(authflow.FromProviderCode(authflow.ProviderCodeInvalidActionCode, "INVALID_OOB_CODE"))

	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Query", "mode", "").Return("verifyEmail")
	ctx.On("Query", "oobCode", "").Return("stale-code")
	ctx.On("Context").Return(context.Background())

	var bind router.ViewContext
	ctx.On("Render", ctrl.Views.AuthAction, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		bind = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.AuthActionShow(ctx))
	require.NotNil(t, bind)
	assert.Equal(t, true, bind["success"])
	assert.Equal(t, true, bind["already_handled"])
}

func TestAuthActionShowResetRendersPasswordForm(t *testing.T) {
	client := &MockIdentityClient{}
	client.On("VerifyPasswordResetCode", mock.Anything, "code-1").
		Return("a@example.com", nil)

	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Query", "mode", "").Return("resetPassword")
	ctx.On("Query", "oobCode", "").Return("code-1")
	ctx.On("Context").Return(context.Background())

	var bind router.ViewContext
	ctx.On("Render", ctrl.Views.AuthAction, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		bind = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.AuthActionShow(ctx))
	require.NotNil(t, bind)
	assert.Equal(t, "code-1", bind["oob_code"])
	assert.Equal(t, "a@example.com", bind["email"])
}

func TestAuthActionShowRejectsUnknownMode(t *testing.T) {
	client := &MockIdentityClient{}
	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Query", "mode", "").Return("bogus")
	ctx.On("Query", "oobCode", "").Return("code-1")

	var bind router.ViewContext
	ctx.On("Render", ctrl.Views.AuthAction, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		bind = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.AuthActionShow(ctx))
	require.NotNil(t, bind)
	assert.NotNil(t, bind["errors"])
	client.AssertNotCalled(t, "VerifyPasswordResetCode", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "ApplyActionCode", mock.Anything, mock.Anything)
}

func TestAuthActionConfirmShortPasswordRendersValidation(t *testing.T) {
	client := &MockIdentityClient{}
	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authflow.AuthActionConfirmPayload)
		payload.OobCode = "code-1"
		payload.Password = "short"
		payload.ConfirmPassword = "short"
	})

	var bind router.ViewContext
	ctx.On("Render", ctrl.Views.AuthAction, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		bind = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.AuthActionConfirm(ctx))
	require.NotNil(t, bind)
	validation, ok := bind["validation"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, validation, "password")
	client.AssertNotCalled(t, "ConfirmPasswordReset", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthActionConfirmUserNotFoundStillRedirectsToLogin(t *testing.T) {
	client := &MockIdentityClient{}
	client.On("ConfirmPasswordReset", mock.Anything, "code-1", "longenough").
		Return(authflow.FromProviderCode(authflow.ProviderCodeUserNotFound, "EMAIL_NOT_FOUND"))

	ctrl := newTestController(t, client)

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*authflow.AuthActionConfirmPayload)
		payload.OobCode = "code-1"
		payload.Password = "longenough"
		payload.ConfirmPassword = "longenough"
	})
	ctx.On("Context").Return(context.Background())
	allowFlashWrites(ctx)
	ctx.On("Redirect", "/login", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, ctrl.AuthActionConfirm(ctx))
	ctx.AssertCalled(t, "Redirect", "/login", []int{http.StatusSeeOther})
}
