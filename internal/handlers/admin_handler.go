package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/services"
)

type AdminHandler struct {
	accounts services.AccountAdminService
	log      *zap.SugaredLogger
}

func NewAdminHandler(accounts services.AccountAdminService, log *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{accounts: accounts, log: log}
}

type AccountPage struct {
	Items  []*models.AccountView `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// accountID rejects ids that cannot exist, so postgres never sees a bad uuid.
func (h *AdminHandler) accountID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, errorBody("Not found"))
		return "", false
	}
	return id, true
}

// @Summary      Список аккаунтов
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        role    query     string  false  "user | admin"
// @Param        status  query     string  false  "active | blocked"
// @Param        search  query     string  false  "имя, email или телефон"
// @Param        limit   query     int     false  "по умолчанию 20, максимум 100"
// @Param        offset  query     int     false  "смещение"
// @Success      200     {object}  handlers.Response{data=handlers.AccountPage}
// @Failure      400     {object}  handlers.Response
// @Failure      403     {object}  handlers.Response
// @Router       /api/admin/accounts [get]
func (h *AdminHandler) List(c *gin.Context) {
	f := models.AccountFilter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  queryInt(c, "limit", 20),
		Offset: queryInt(c, "offset", 0),
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := h.accounts.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, "[admin][accounts][list]", err)
		return
	}
	page := AccountPage{Items: make([]*models.AccountView, 0, len(items)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, a := range items {
		page.Items = append(page.Items, a.AdminView())
	}
	respond(c, http.StatusOK, &Response{Message: "OK", Data: page})
}

// @Summary      Аккаунт по id
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID аккаунта"
// @Success      200  {object}  handlers.Response
// @Failure      404  {object}  handlers.Response
// @Router       /api/admin/accounts/{id} [get]
func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	a, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "[admin][accounts][get]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "OK", User: a.AdminView()})
}

// @Summary      Заблокировать аккаунт
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID аккаунта"
// @Success      200  {object}  handlers.Response
// @Failure      400  {object}  handlers.Response
// @Failure      404  {object}  handlers.Response
// @Router       /api/admin/accounts/{id}/block [post]
func (h *AdminHandler) Block(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	a, err := h.accounts.Block(c.Request.Context(), currentAccount(c).ID, id)
	if err != nil {
		respondError(c, h.log, "[admin][accounts][block]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Account blocked", User: a.AdminView()})
}

// @Summary      Разблокировать аккаунт
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID аккаунта"
// @Success      200  {object}  handlers.Response
// @Failure      404  {object}  handlers.Response
// @Router       /api/admin/accounts/{id}/unblock [post]
func (h *AdminHandler) Unblock(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	a, err := h.accounts.Unblock(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "[admin][accounts][unblock]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Account unblocked", User: a.AdminView()})
}

// @Summary      Снять блокировку по неудачным входам
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID аккаунта"
// @Success      200  {object}  handlers.Response
// @Failure      404  {object}  handlers.Response
// @Router       /api/admin/accounts/{id}/unlock [post]
func (h *AdminHandler) Unlock(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	a, err := h.accounts.Unlock(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "[admin][accounts][unlock]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Account unlocked", User: a.AdminView()})
}
