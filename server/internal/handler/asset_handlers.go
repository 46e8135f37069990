package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/tanix/internal/assets"
)

type AssetHandler struct{}

func NewAssetHandler() *AssetHandler {
	return &AssetHandler{}
}

func (h *AssetHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "assets": assets.Catalog()})
}

func (h *AssetHandler) GetByCategory(c *gin.Context) {
	category := c.Param("category")
	c.JSON(http.StatusOK, gin.H{"ok": true, "category": category, "assets": assets.ByCategory(category)})
}
