package authflow

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterAuthRoutes mounts the authentication pages and actions.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.
		Post(controller.Routes.Login, controller.SessionCreate).
		SetName("sign-in.post")

	app.
		Get(controller.Routes.Signup, controller.SignupShow).
		SetName("sign-up.get")
	app.
		Post(controller.Routes.Signup, controller.SessionCreate).
		SetName("sign-up.post")

	app.
		Post(controller.Routes.Session, controller.SessionCreate).
		SetName("session.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.
		Get(controller.Routes.PasswordReset, controller.PasswordResetShow).
		SetName("pwd-reset.get")
	app.
		Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.
		Get(controller.Routes.AuthAction, controller.AuthActionShow).
		SetName("auth-action.get")
	app.
		Post(controller.Routes.AuthAction, controller.AuthActionConfirm).
		SetName("auth-action.post")
}

// AuthControllerRoutes are the mounted paths.
type AuthControllerRoutes struct {
	Login         string
	Signup        string
	Session       string
	Logout        string
	PasswordReset string
	AuthAction    string
}

// AuthControllerViews are the template names the pages render.
type AuthControllerViews struct {
	Login         string
	Signup        string
	PasswordReset string
	AuthAction    string
}

// AuthController serves the authentication pages: the login and signup forms
// post their freshly minted identity token to the session action, the reset
// and auth-action pages drive the provider's out-of-band codes.
type AuthController struct {
	Debug        bool
	Logger       Logger
	Client       IdentityClient
	Store        *CookieSessionStore
	Auther       *RouteAuthenticator
	Cfg          Config
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler router.ErrorHandler
}

// AuthControllerOption customizes controller construction.
type AuthControllerOption func(*AuthController) *AuthController

// WithControllerClient sets the identity provider client.
func WithControllerClient(client IdentityClient) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Client = client
		return c
	}
}

// WithControllerAuthenticator sets the route authenticator and its store.
func WithControllerAuthenticator(auther *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		c.Store = auther.store
		return c
	}
}

// WithControllerConfig sets the shared config.
func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cfg = cfg
		return c
	}
}

// WithControllerLogger overrides the default logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug enables payload dumps on actions.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// NewAuthController builds a controller with default routes and views.
func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:         "/login",
			Signup:        "/signup",
			Session:       "/session",
			Logout:        "/logout",
			PasswordReset: "/password-reset",
			AuthAction:    "/auth-action",
		},
		Views: &AuthControllerViews{
			Login:         "login",
			Signup:        "signup",
			PasswordReset: "password_reset",
			AuthAction:    "auth_action",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Client == nil {
		panic("Missing IdentityClient in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	param := "redirectTo"
	if a.Cfg != nil {
		param = a.Cfg.GetRejectedRouteParam()
	}

	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors":       nil,
		"record":       nil,
		"redirect_to":  ctx.Query(param, ""),
		"notification": a.Store.PopNotification(ctx),
	})
}

func (a *AuthController) SignupShow(ctx router.Context) error {
	return ctx.Render(a.Views.Signup, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// SessionCreate is the session action: the browser-side flows post their
// identity token here, the server verifies it and seals the cookie.
func (a *AuthController) SessionCreate(ctx router.Context) error {
	payload := new(SessionRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("session create parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("session create validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"validation": formatValidationErrors(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH SESSION ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===========================")
	}

	if err := a.Auther.CreateUserSession(ctx, *payload); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  "Authentication Error",
			"system_message": "Could not establish session",
		}).Status(fiber.StatusUnauthorized).Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{"authentication": "Authentication Error"},
		})
	}

	return nil
}

func (a *AuthController) LogOut(ctx router.Context) error {
	return a.Auther.Logout(ctx)
}

func (a *AuthController) PasswordResetShow(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// PasswordResetRequestPayload holds the reset-email form values.
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules.
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	if err := a.Client.SendPasswordResetEmail(ctx.Context(), payload.Email); err != nil {
		// an unknown address still reads as sent so the form cannot be used
		// to probe for registered accounts
		if !IsUserNotFound(err) {
			a.Logger.Error("password reset request error: %v", err)
			return ctx.Render(a.Views.PasswordReset, router.ViewContext{
				"errors": map[string]string{"request": "Could not send reset email"},
				"record": payload,
			})
		}
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"sent":   true,
		"email":  payload.Email,
	})
}

// AuthActionQuery holds the parameters the provider embeds in action links.
type AuthActionQuery struct {
	Mode    string `form:"mode" json:"mode"`
	OobCode string `form:"oobCode" json:"oobCode"`
}

// Validate will run validation rules.
func (r AuthActionQuery) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Mode,
			validation.Required,
			validation.In(
				string(ActionModeResetPassword),
				string(ActionModeRecoverEmail),
				string(ActionModeVerifyEmail),
			),
		),
		validation.Field(&r.OobCode, validation.Required),
	)
}

// AuthActionShow handles action links: verify-email and recover-email codes
// are consumed immediately, reset links render the new-password form.
func (a *AuthController) AuthActionShow(ctx router.Context) error {
	query := AuthActionQuery{
		Mode:    ctx.Query("mode", ""),
		OobCode: ctx.Query("oobCode", ""),
	}

	if err := query.Validate(); err != nil {
		a.Logger.Error("auth action validate query: %v", err)
		return ctx.Render(a.Views.AuthAction, router.ViewContext{
			"errors": map[string]string{"link": "This link is not valid"},
		})
	}

	switch ActionMode(query.Mode) {
	case ActionModeResetPassword:
		email, err := a.Client.VerifyPasswordResetCode(ctx.Context(), query.OobCode)
		if err != nil {
			a.Logger.Error("reset code verification error: %v", err)
			return ctx.Render(a.Views.AuthAction, router.ViewContext{
				"mode":   query.Mode,
				"errors": map[string]string{"code": "This link is expired or already used"},
			})
		}
		return ctx.Render(a.Views.AuthAction, router.ViewContext{
			"mode":     query.Mode,
			"oob_code": query.OobCode,
			"email":    email,
		})

	default:
		alreadyHandled := false
		if err := a.Client.ApplyActionCode(ctx.Context(), query.OobCode); err != nil {
			if !AlreadyHandled(err) {
				a.Logger.Error("action code error: %v", err)
				return ctx.Render(a.Views.AuthAction, router.ViewContext{
					"mode":   query.Mode,
					"errors": map[string]string{"code": "This link is expired or already used"},
				})
			}
			alreadyHandled = true
		}
		return ctx.Render(a.Views.AuthAction, router.ViewContext{
			"mode":            query.Mode,
			"success":         true,
			"already_handled": alreadyHandled,
		})
	}
}

// AuthActionConfirmPayload holds the new-password form values.
type AuthActionConfirmPayload struct {
	OobCode         string `form:"oobCode" json:"oobCode"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules.
func (r AuthActionConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OobCode, validation.Required),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(MinPasswordLength, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(validateStringEquals(r.Password)),
		),
	)
}

// AuthActionConfirm consumes a reset code with the replacement password.
func (a *AuthController) AuthActionConfirm(ctx router.Context) error {
	payload := new(AuthActionConfirmPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("auth action parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.AuthAction, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("auth action validate payload: %v", err)
		return ctx.Render(a.Views.AuthAction, router.ViewContext{
			"mode":       string(ActionModeResetPassword),
			"oob_code":   payload.OobCode,
			"validation": formatValidationErrors(err),
		})
	}

	if err := a.Client.ConfirmPasswordReset(ctx.Context(), payload.OobCode, payload.Password); err != nil {
		// the account vanished between verify and confirm; reporting that
		// would leak its existence, so it reads as done
		if !IsUserNotFound(err) {
			a.Logger.Error("reset confirmation error: %v", err)
			return ctx.Render(a.Views.AuthAction, router.ViewContext{
				"mode":     string(ActionModeResetPassword),
				"oob_code": payload.OobCode,
				"errors":   map[string]string{"confirmation": "Could not update password"},
			})
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password updated",
	}).Redirect(a.loginPath(), fiber.StatusSeeOther)
}

func (a *AuthController) loginPath() string {
	if a.Cfg != nil {
		return a.Cfg.GetLoginPath()
	}
	return a.Routes.Login
}

// validateStringEquals will check that both values match.
func validateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values must match")
		}
		return nil
	}
}

// formatValidationErrors flattens ozzo validation output for templates.
func formatValidationErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
