package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/services"
)

type CartHandler struct {
	carts services.CartService
	log   *zap.SugaredLogger
}

func NewCartHandler(carts services.CartService, log *zap.SugaredLogger) *CartHandler {
	return &CartHandler{carts: carts, log: log}
}

// @Summary      Корзина текущего пользователя
// @Tags         Cart
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.Response{data=models.Cart}
// @Router       /api/cart [get]
func (h *CartHandler) Get(c *gin.Context) {
	cart, err := h.carts.Get(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		respondError(c, h.log, "[cart][get]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "OK", Data: cart})
}

// @Summary      Добавить товар
// @Tags         Cart
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      models.CartItemRequest  true  "Товар и количество"
// @Success      200   {object}  handlers.Response{data=models.Cart}
// @Failure      400   {object}  handlers.Response
// @Router       /api/cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req models.CartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.carts.AddItem(c.Request.Context(), currentAccount(c).ID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, h.log, "[cart][add]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Item added", Data: cart})
}

// @Summary      Убрать товар
// @Tags         Cart
// @Produce      json
// @Security     BearerAuth
// @Param        productId  path      string  true  "ID товара"
// @Success      200        {object}  handlers.Response{data=models.Cart}
// @Failure      404        {object}  handlers.Response
// @Router       /api/cart/items/{productId} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	cart, err := h.carts.RemoveItem(c.Request.Context(), currentAccount(c).ID, c.Param("productId"))
	if err != nil {
		respondError(c, h.log, "[cart][remove]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Item removed", Data: cart})
}

// @Summary      Очистить корзину
// @Tags         Cart
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.Response
// @Router       /api/cart [delete]
func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), currentAccount(c).ID); err != nil {
		respondError(c, h.log, "[cart][clear]", err)
		return
	}
	respond(c, http.StatusOK, &Response{Message: "Cart cleared"})
}
