package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Dhatchanamoorthi8/cali-flow-control-center/config"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/api/handler"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/api/middleware"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/internal/model"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/jwt"
	"github.com/Dhatchanamoorthi8/cali-flow-control-center/pkg/redis"
)

// 登录接口限流：每 IP 每分钟 10 次
const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	admin := middleware.RoleAuth(model.RoleAdmin)
	staff := middleware.RoleAuth(model.RoleAdmin, model.RoleTechnician)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(rdb, loginRateLimit, loginRateWindow), h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.PUT("/auth/password", h.Auth.ChangePassword)

			// 用户模块（Users 页面，仅管理员）
			profiles := authorized.Group("/profiles", admin)
			{
				profiles.GET("", h.Profile.ListProfiles)
				profiles.POST("", h.Profile.CreateProfile)
				profiles.GET("/:id", h.Profile.GetProfile)
				profiles.PUT("/:id", h.Profile.UpdateProfile)
				profiles.DELETE("/:id", h.Profile.DeactivateProfile)
				profiles.PUT("/:id/role", h.Profile.AssignRole)
			}

			// 客户模块
			clients := authorized.Group("/clients")
			{
				clients.GET("", staff, h.Client.ListClients)
				clients.GET("/:id", staff, h.Client.GetClient)
				clients.POST("", admin, h.Client.CreateClient)
				clients.PUT("/:id", admin, h.Client.UpdateClient)
				clients.DELETE("/:id", admin, h.Client.DeleteClient)
			}

			// 设备模块
			devices := authorized.Group("/devices")
			{
				devices.GET("", h.Device.ListDevices)
				devices.GET("/due", h.Device.ListDue)
				devices.POST("/import", admin, h.Device.ImportDevices)
				devices.GET("/:id", h.Device.GetDevice)
				devices.POST("", staff, h.Device.CreateDevice)
				devices.PUT("/:id", staff, h.Device.UpdateDevice)
				devices.DELETE("/:id", admin, h.Device.DeleteDevice)
			}

			// 校准记录模块
			calibrations := authorized.Group("/calibrations")
			{
				calibrations.GET("", h.Calibration.ListCalibrations)
				calibrations.POST("", staff, h.Calibration.CreateCalibration)
				calibrations.GET("/calendar.ics", h.Calibration.Calendar)
				calibrations.POST("/overdue-sweep", admin, h.Calibration.SweepOverdue)
				calibrations.GET("/:id", h.Calibration.GetCalibration)
				calibrations.PUT("/:id/status", staff, h.Calibration.UpdateStatus)
				calibrations.GET("/:id/export", h.Export.ExportCalibration)
			}

			// 校准录入页（会话归属由 Service 层校验）
			sessions := authorized.Group("/sessions", staff)
			{
				sessions.POST("", h.Session.OpenSession)
				sessions.GET("/:id", h.Session.GetSession)
				sessions.PUT("/:id/cells", h.Session.SetCells)
				sessions.PUT("/:id/precision", h.Session.SetPrecision)
				sessions.PUT("/:id/selection", h.Session.SetSelection)
				sessions.POST("/:id/merge", h.Session.Merge)
				sessions.POST("/:id/unmerge", h.Session.Unmerge)
				sessions.PUT("/:id/meta", h.Session.UpdateMeta)
				sessions.POST("/:id/save", h.Session.Save)
				sessions.POST("/:id/complete", h.Session.Complete)
				sessions.DELETE("/:id", h.Session.CloseSession)
			}

			// 证书模块
			certificates := authorized.Group("/certificates")
			{
				certificates.GET("", h.Certificate.ListCertificates)
				certificates.POST("", staff, h.Certificate.CreateCertificate)
				certificates.GET("/:id", h.Certificate.GetCertificate)
				certificates.GET("/:id/download", h.Export.DownloadCertificate)
				certificates.POST("/:id/email-sent", staff, h.Certificate.MarkEmailSent)
			}

			// 报表模块
			reports := authorized.Group("/reports", staff)
			{
				reports.GET("/summary", h.Report.Summary)
				reports.GET("/monthly", h.Report.Monthly)
				reports.GET("/technicians", h.Report.Technicians)
				reports.GET("/export", h.Export.ExportReport)
			}
		}
	}

	return r
}
