package api

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/crafthub-ledger/internal/middleware"
)

// Register mounts every ledger route. ws serves the live wallet feed and may
// be nil.
func Register(e *echo.Echo, h *Handler, jwtSecret string, ws echo.HandlerFunc) {
	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)

	auth := middleware.JWT(jwtSecret)

	wallet := e.Group("/wallet", auth)
	wallet.GET("/me", h.Summary, middleware.RequireRoles(middleware.RoleSeller, middleware.RoleAdmin))
	wallet.GET("/transactions", h.Transactions)
	wallet.GET("/withdrawals", h.Withdrawals)
	wallet.GET("/withdrawals/:id", h.Withdrawal)
	wallet.POST("/withdrawals", h.CreateWithdrawal, middleware.RequireRoles(middleware.RoleSeller))
	if ws != nil {
		wallet.GET("/ws", ws, middleware.RequireRoles(middleware.RoleSeller))
	}

	admin := e.Group("/admin", auth)
	admin.POST("/withdrawals/:id/approve", h.Approve, middleware.AdminGuard)
	admin.POST("/withdrawals/:id/reject", h.Reject, middleware.AdminGuard)
	admin.GET("/wallets/:id/verify", h.Verify, middleware.AdminGuard)
	admin.POST("/orders/:id/settle", h.Settle, middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleFulfillment))
	admin.POST("/orders/:id/delivered", h.Delivered, middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleFulfillment))
}
