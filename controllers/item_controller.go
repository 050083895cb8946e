// controllers/item_controller.go
package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemController struct{ *Srv }

func NewItemController(s *Srv) *ItemController { return &ItemController{Srv: s} }

type createItemReq struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description" binding:"max=2000"`
	Category    string `json:"category" binding:"max=100"`
}

// CreateItem 登录用户上架自己的物品
func (ic *ItemController) CreateItem(c *gin.Context) {
	var in createItemReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "name is required"})
		return
	}
	it := &models.Item{
		ID:          uuid.NewString(),
		OwnerID:     app.UserID(c),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
	}
	if err := ic.Repo.CreateItem(c.Request.Context(), it); err != nil {
		ic.internalError(c, "create item", err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// ListItems ?q=&category=&status=available|open|overdue&mine=true&page=&size=
func (ic *ItemController) ListItems(c *gin.Context) {
	q := db.ItemsQuery{
		Q:        c.Query("q"),
		Category: c.Query("category"),
		Status:   strings.ToLower(strings.TrimSpace(c.Query("status"))),
	}
	switch q.Status {
	case "", "available", "open", "overdue":
	default:
		c.JSON(http.StatusBadRequest, app.H{"error": "unknown status filter"})
		return
	}
	if mine, _ := strconv.ParseBool(c.Query("mine")); mine {
		q.OwnerID = app.UserID(c)
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := ic.Repo.ListItemsWithOpenLoan(c.Request.Context(), q)
	if err != nil {
		ic.internalError(c, "list items", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (ic *ItemController) GetItem(c *gin.Context) {
	it, err := ic.Repo.FindItemByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, app.H{"error": "item not found"})
			return
		}
		ic.internalError(c, "get item", err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// ownedItem 加载物品并确认调用者是所有者；失败时已写好响应
func (ic *ItemController) ownedItem(c *gin.Context) (*models.Item, bool) {
	it, err := ic.Repo.FindItemByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, app.H{"error": "item not found"})
			return nil, false
		}
		ic.internalError(c, "get item", err)
		return nil, false
	}
	if it.OwnerID != app.UserID(c) {
		c.JSON(http.StatusForbidden, app.H{"error": "unauthorized"})
		return nil, false
	}
	return it, true
}

// 可借状态不在可编辑字段里，由借用流程维护
type updateItemReq struct {
	Name        *string `json:"name" binding:"omitempty,max=200"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	Category    *string `json:"category" binding:"omitempty,max=100"`
}

// UpdateItem 所有者编辑目录信息
func (ic *ItemController) UpdateItem(c *gin.Context) {
	var in updateItemReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	var d db.ItemDetails
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, app.H{"error": "name must not be empty"})
			return
		}
		d.Name = &name
	}
	if in.Description != nil {
		v := strings.TrimSpace(*in.Description)
		d.Description = &v
	}
	if in.Category != nil {
		v := strings.TrimSpace(*in.Category)
		d.Category = &v
	}

	it, ok := ic.ownedItem(c)
	if !ok {
		return
	}
	updated, err := ic.Repo.UpdateItemDetails(c.Request.Context(), it.ID, d, ic.Clock.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, app.H{"error": "item not found"})
			return
		}
		ic.internalError(c, "update item", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteItem 所有者删除从未被借用过的物品
func (ic *ItemController) DeleteItem(c *gin.Context) {
	it, ok := ic.ownedItem(c)
	if !ok {
		return
	}
	switch err := ic.Repo.DeleteItem(c.Request.Context(), it.ID); {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, db.ErrItemHasLoans):
		c.JSON(http.StatusConflict, app.H{"error": "item has loans and cannot be deleted"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, app.H{"error": "item not found"})
	default:
		ic.internalError(c, "delete item", err)
	}
}
