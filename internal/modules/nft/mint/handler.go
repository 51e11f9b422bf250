package mint

import (
	"github.com/gin-gonic/gin"

	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/pkg/response"
)

// Handler handles NFT and wallet HTTP requests.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts NFT routes onto the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	nft := rg.Group("/nft", authMW)
	nft.GET("/entries", h.gallery)
	nft.GET("/entries/:id/audits", h.audits)
	nft.POST("/entries/:id/mint", h.mint)

	nft.GET("/wallet", h.walletStatus)
	nft.POST("/wallet", h.generateWallet)
	nft.POST("/wallet/airdrop", h.airdrop)
}

// mint POST /nft/entries/:id/mint
func (h *Handler) mint(c *gin.Context) {
	entry, err := h.svc.Mint(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// gallery GET /nft/entries
func (h *Handler) gallery(c *gin.Context) {
	entries, err := h.svc.ListMinted(middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// audits GET /nft/entries/:id/audits
func (h *Handler) audits(c *gin.Context) {
	audits, err := h.svc.Audits(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, audits)
}

// walletStatus GET /nft/wallet
func (h *Handler) walletStatus(c *gin.Context) {
	response.OK(c, h.svc.WalletStatus(c.Request.Context()))
}

// generateWallet POST /nft/wallet
func (h *Handler) generateWallet(c *gin.Context) {
	address, err := h.svc.GenerateWallet(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"address": address})
}

type airdropDTO struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// airdrop POST /nft/wallet/airdrop
func (h *Handler) airdrop(c *gin.Context) {
	var dto airdropDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.Airdrop(c.Request.Context(), dto.Amount); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.svc.WalletStatus(c.Request.Context()))
}
