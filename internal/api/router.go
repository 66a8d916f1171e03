package api

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/mw"
)

var streamPage = template.Must(template.New("stream.html").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Name}}</title></head>
<body>
<h1>{{.Name}}</h1>
<img src="{{.FeedURL}}" alt="{{.Name}}">
</body>
</html>
`))

// NewRouter creates and configures a new Gin router.
func NewRouter(deps Dependencies, opts Options) *gin.Engine {
	r := gin.Default()
	r.SetHTMLTemplate(streamPage)

	handler := NewHandler(deps, opts)
	opts = handler.opts

	// X-Forwarded-For is honoured only from configured proxies.
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		logger.Log.Warnf("ignoring trusted proxies %v: %v", opts.TrustedProxies, err)
		_ = r.SetTrustedProxies(nil)
	}

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)
	lockout := mw.Lockout(cache.New(opts.LockoutCooloff, 10*time.Minute), opts.LockoutFailures, opts.LockoutCooloff)

	r.Use(mw.Session(deps.Auth, opts.CookieName))

	r.GET("/healthz", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/home/") })

	public := r.Group("/", rateLimiter)
	{
		public.GET("/login/", handler.LoginForm)
		public.POST("/login/", lockout, handler.Login)
		public.GET("/registro/", handler.RegisterForm)
		public.POST("/registro/", handler.Register)
		public.GET("/logout/", handler.Logout)
		public.POST("/logout/", handler.Logout)
	}

	authed := r.Group("/", mw.RequireSession())
	{
		// Long-lived responses stay outside the rate limiter.
		authed.GET("/mjpeg_feed/", handler.MJPEGFeed)
		authed.Static("/media", opts.MediaRoot)

		limited := authed.Group("", rateLimiter)
		limited.GET("/home/", handler.Home)
		limited.POST("/add_camera/", handler.AddCamera)
		limited.POST("/delete_camera/:camera_id/", handler.DeleteCamera)
		limited.GET("/generate_qr/:camera_id/", handler.GenerateQR)
		limited.GET("/stream/", handler.Stream)
		limited.GET("/capture/:camera_id/", handler.Capture)
		limited.POST("/capture/:camera_id/", handler.Capture)
		limited.GET("/captures/", handler.Captures)
	}

	api := r.Group("/api", rateLimiter)
	{
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		subscriptions := api.Group("/subscriptions", mw.RequireSession())
		subscriptions.GET("", handler.GetSubscription)
		subscriptions.PUT("", handler.PutSubscription)
		subscriptions.DELETE("", handler.DeleteSubscription)
	}

	return r
}
