package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/services"
)

// LoginFlows is the part of the login guardian the HTTP layer drives.
type LoginFlows interface {
	Register(ctx context.Context, in services.NewAccount) (*services.LoginResult, error)
	Login(ctx context.Context, identifier, password string) (*services.LoginResult, error)
	AdminLogin(ctx context.Context, email, password string) (*services.LoginResult, error)
	RequestOTP(ctx context.Context, identifier, purpose string) error
	LoginWithOTP(ctx context.Context, identifier, code string) (*services.LoginResult, error)
}

type AuthHandler struct {
	logins    LoginFlows
	passwords services.PasswordResetService
	log       *zap.SugaredLogger
}

func NewAuthHandler(logins LoginFlows, passwords services.PasswordResetService, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{logins: logins, passwords: passwords, log: log}
}

// @Summary      Регистрация
// @Description  Создаёт аккаунт с ролью user и возвращает токен
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.RegisterRequest  true  "Данные регистрации"
// @Success      201   {object}  handlers.Response
// @Failure      400   {object}  handlers.Response
// @Failure      409   {object}  handlers.Response
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	in := services.NewAccount{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Gender:   req.Gender,
	}
	if req.DOB != "" {
		// формат уже проверен валидатором
		dob, _ := time.Parse(models.DateLayout, req.DOB)
		in.DOB = &dob
	}

	res, err := h.logins.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, "[auth][register]", err)
		return
	}
	respondLogin(c, http.StatusCreated, "Registration successful", res)
}

// @Summary      Вход по паролю
// @Description  identifier: email или телефон
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Данные для входа"
// @Success      200   {object}  handlers.Response
// @Failure      400   {object}  handlers.Response
// @Failure      401   {object}  handlers.Response
// @Failure      403   {object}  handlers.Response
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.logins.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		respondError(c, h.log, "[auth][login]", err)
		return
	}
	respondLogin(c, http.StatusOK, "Login successful", res)
}

// @Summary      Вход администратора
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        body  body      models.AdminLoginRequest  true  "Email и пароль"
// @Success      200   {object}  handlers.Response
// @Failure      401   {object}  handlers.Response
// @Failure      403   {object}  handlers.Response
// @Router       /api/admin/login [post]
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req models.AdminLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.logins.AdminLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, "[auth][admin-login]", err)
		return
	}
	respondLogin(c, http.StatusOK, "Login successful", res)
}

// @Summary      Запросить одноразовый код
// @Description  Ответ одинаковый, даже если аккаунт не найден
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.OTPRequest  true  "Идентификатор и назначение"
// @Success      200   {object}  handlers.Response
// @Failure      400   {object}  handlers.Response
// @Failure      429   {object}  handlers.Response
// @Router       /api/auth/otp/request [post]
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req models.OTPRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.logins.RequestOTP(c.Request.Context(), req.Identifier, req.Purpose); err != nil {
		respondError(c, h.log, "[otp][request]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "If the account exists, a code has been sent"})
}

// @Summary      Вход по одноразовому коду
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.OTPLoginRequest  true  "Идентификатор и код"
// @Success      200   {object}  handlers.Response
// @Failure      400   {object}  handlers.Response
// @Failure      401   {object}  handlers.Response
// @Failure      403   {object}  handlers.Response
// @Router       /api/auth/otp/login [post]
func (h *AuthHandler) LoginWithOTP(c *gin.Context) {
	var req models.OTPLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.logins.LoginWithOTP(c.Request.Context(), req.Identifier, req.Code)
	if err != nil {
		respondError(c, h.log, "[otp][login]", err)
		return
	}
	respondLogin(c, http.StatusOK, "Login successful", res)
}

// @Summary      Сброс пароля по коду
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.ResetPasswordRequest  true  "Код и новый пароль"
// @Success      200   {object}  handlers.Response
// @Failure      400   {object}  handlers.Response
// @Router       /api/auth/password/reset [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.passwords.ResetWithOTP(c.Request.Context(), req.Identifier, req.Code, req.NewPassword); err != nil {
		respondError(c, h.log, "[password-reset]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Password has been reset"})
}

// @Summary      Текущий пользователь
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.Response
// @Failure      401  {object}  handlers.Response
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	acc := currentAccount(c)
	respond(c, http.StatusOK, &Response{Message: "OK", User: acc.View()})
}

// @Summary      Смена пароля
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      models.ChangePasswordRequest  true  "Текущий и новый пароль"
// @Success      200   {object}  handlers.Response
// @Failure      400   {object}  handlers.Response
// @Failure      401   {object}  handlers.Response
// @Failure      403   {object}  handlers.Response
// @Failure      429   {object}  handlers.Response
// @Router       /api/auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	acc := currentAccount(c)
	if err := h.passwords.ChangePassword(c.Request.Context(), acc.ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, h.log, "[password][change]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Password changed"})
}

// @Summary      Выход
// @Description  Токены не отзываются, клиент просто удаляет свой
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.Response
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	respond(c, http.StatusOK, &Response{Message: "Logged out"})
}
