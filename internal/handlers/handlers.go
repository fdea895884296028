package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"librarium/api/internal/cache"
	"librarium/api/internal/config"
	"librarium/api/internal/middleware"
	"librarium/api/internal/models"
	"librarium/api/internal/repository"
	"librarium/api/internal/service"
	"librarium/api/internal/storage"
)

type HandlerSet struct {
	log            zerolog.Logger
	cfg            *config.AppConfig
	authService    *service.AuthService
	libraryService *service.LibraryService
	coverService   *service.CoverService
	chatbot        *service.ChatbotService
	db             *pgxpool.Pool
	cache          *redis.Client
	users          *repository.UserRepository
	contacts       *repository.ContactRepository
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, redisClient *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	resetRepo := repository.NewResetRepository(db)
	bookRepo := repository.NewBookRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	contactRepo := repository.NewContactRepository(db)

	limiter := cache.NewLoginLimiter(redisClient, cfg.Security.LoginMaxAttempts, cfg.Security.LoginWindow)

	auth := service.NewAuthService(userRepo, sessionRepo, resetRepo, limiter, cfg, log)
	library := service.NewLibraryService(bookRepo, loanRepo, reviewRepo, redisClient, cfg, log)
	covers := service.NewCoverService(bookRepo, store, cfg, log)
	chatbot := service.NewChatbotService(bookRepo, redisClient, log)

	return HandlerSet{
		log:            log,
		cfg:            cfg,
		authService:    auth,
		libraryService: library,
		coverService:   covers,
		chatbot:        chatbot,
		db:             db,
		cache:          redisClient,
		users:          userRepo,
		contacts:       contactRepo,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/password-reset", h.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.ConfirmPasswordReset)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg))
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/sessions/:sessionId", h.RevokeSession)
	}

	books := v1.Group("/books")
	books.GET("", h.ListBooks)
	books.GET("/:bookId", h.GetBook)
	books.GET("/:bookId/reviews", h.ListReviews)

	borrow := v1.Group("/books")
	borrow.Use(middleware.Auth(h.cfg))
	borrow.POST("/:bookId/borrow", h.BorrowBook)
	borrow.POST("/:bookId/reviews", h.CreateReview)

	loans := v1.Group("/loans")
	loans.Use(middleware.Auth(h.cfg))
	loans.GET("", h.ListMyLoans)
	loans.POST("/:loanId/return", h.ReturnLoan)

	reviews := v1.Group("/reviews")
	reviews.Use(middleware.Auth(h.cfg))
	reviews.DELETE("/:reviewId", h.DeleteReview)

	v1.POST("/contact", h.CreateContactMessage)
	v1.POST("/chatbot", h.Chatbot)

	admin := v1.Group("/admin")
	admin.Use(
		middleware.Auth(h.cfg),
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.POST("/books", h.CreateBook)
	admin.PUT("/books/:bookId", h.UpdateBook)
	admin.DELETE("/books/:bookId", h.DeleteBook)
	admin.POST("/books/:bookId/cover", h.UploadCover)
	admin.GET("/loans", h.AdminListLoans)
	admin.GET("/users", h.AdminListUsers)
	admin.PATCH("/users/:userId/role", h.AdminUpdateRole)
	admin.GET("/contact", h.AdminListContactMessages)
	admin.GET("/stats", h.AdminStats)
}
