package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"eventhub/cmd/middleware"
	"eventhub/internal/auth"
	"eventhub/internal/payment"
	"eventhub/internal/service"
)

type Routers struct {
	Service  service.Service
	Verifier *auth.Verifier
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", payment.SignatureHeader},
		MaxAge:          12 * time.Hour,
	}))

	app.GET("/healthz", func(c *ginext.Context) {
		c.JSON(200, map[string]string{"status": "ok"})
	})

	v1 := app.Group("/v1")
	v1.POST("/webhooks/razorpay", r.Service.RazorpayWebhook)

	user := v1.Group("", middleware.Auth(r.Verifier))
	user.GET("/events", r.Service.GetAllEvents)
	user.GET("/events/:id", r.Service.GetEvent)
	user.POST("/events/:id/register", r.Service.Register)
	user.POST("/registrations/:id/checkout", r.Service.Checkout)
	user.GET("/payments", r.Service.GetPayments)
	user.GET("/notifications", r.Service.GetNotifications)
	user.POST("/notifications/:id/read", r.Service.MarkNotificationRead)
	user.GET("/notifications/preferences", r.Service.GetPreferences)
	user.PUT("/notifications/preferences", r.Service.UpdatePreferences)

	admin := v1.Group("", middleware.Auth(r.Verifier), middleware.RequireAdmin())
	admin.POST("/events", r.Service.CreateEvent)
	admin.POST("/notifications", r.Service.SendNotification)
	admin.GET("/jobs/process-referrals", r.Service.ProcessReferrals)
	admin.POST("/jobs/process-referrals", r.Service.ProcessReferrals)
	admin.POST("/jobs/send-notifications", r.Service.SendNotifications)

	return app
}
